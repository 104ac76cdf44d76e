package main

import (
	"github.com/spf13/cobra"
)

func addCommands(root *cobra.Command) {
	// Registry
	cmd := &cobra.Command{
		Use:   "list-ops",
		Short: "List the registered ops",
		Args:  cobra.NoArgs,
		Run:   listOps}
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "describe-op op",
		Short: "Show the parameters and variants of an op",
		Args:  cobra.ExactArgs(1),
		Run:   describeOp}
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "invoke op",
		Short: "Invoke an op on lists read from files",
		Args:  cobra.ExactArgs(1),
		Run:   invokeOp}
	cmd.Flags().StringArray("column", nil, "columnar argument, name=file (json, jsonl or parquet)")
	cmd.Flags().StringArray("arg", nil, "scalar argument, name=value (value parsed as JSON, else taken as a string)")
	root.AddCommand(cmd)

	// Structural
	cmd = &cobra.Command{
		Use:   "unnest file...",
		Short: "Expand the list fields of a list of records into rows",
		Args:  cobra.MinimumNArgs(1),
		Run:   structural("List-unnest")}
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "flatten file...",
		Short: "Concatenate the inner lists of a list of lists",
		Args:  cobra.MinimumNArgs(1),
		Run:   structural("List-flatten")}
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "unique file...",
		Short: "Keep the first occurrence of every distinct row",
		Args:  cobra.MinimumNArgs(1),
		Run:   structural("List-unique")}
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "concat file...",
		Short: "Concatenate the rows of a list of lists, treating null rows as empty",
		Args:  cobra.MinimumNArgs(1),
		Run:   structural("List-concat")}
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "groupby file",
		Short: "Group a list of records by one or more fields",
		Args:  cobra.ExactArgs(1),
		Run:   groupBy}
	cmd.Flags().StringArray("field", nil, "key field (repeatable)")
	cmd.MarkFlagRequired("field")
	root.AddCommand(cmd)

	// Files
	cmd = &cobra.Command{
		Use:   "convert source target",
		Short: "Convert a list between json, jsonl and parquet",
		Args:  cobra.ExactArgs(2),
		Run:   convert}
	root.AddCommand(cmd)
}

func main() {
	var root = &cobra.Command{Use: "loom"}
	root.PersistentFlags().String("log-level", "warn", "log level, 'debug', 'info', 'warn' or 'error'")
	root.PersistentFlags().String("seq-url", "", "also ship logs to this Seq server")
	root.PersistentFlags().String("format", "pretty", "format results, 'json' or 'pretty'")
	root.PersistentFlags().String("style", "ascii", "table style, 'ascii', 'markdown' or 'minimal'")
	root.PersistentFlags().Int("max-rows", 10, "rows shown per table (0 shows all)")
	addCommands(root)
	root.Execute()
}
