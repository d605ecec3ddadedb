package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Patch-Manager/tarmac-annotate/pkg/listing"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <listing-file>",
	Short: "Dump the function symbol table parsed from a listing file",
	Long: `Parses a disassembly listing and prints every function symbol with its
entry address, in listing order. Useful to check that a listing and a
tarmac trace are in sync before annotating.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		symbols, _, err := listing.ParseFile(args[0])
		if err != nil {
			colorError.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}

		outputFile, _ := cmd.Flags().GetString("output")
		if outputFile != "" {
			file, err := os.Create(outputFile)
			if err != nil {
				fmt.Println("Error creating file:", err)
				os.Exit(1)
			}
			defer file.Close()

			for _, symbol := range symbols.Symbols() {
				fmt.Fprintf(file, "0x%s  %s\n", symbol.Address, symbol.Name)
			}
			return
		}

		colorHeading.Printf("%d functions\n", symbols.Len())
		for _, symbol := range symbols.Symbols() {
			colorAddr.Printf("0x%s  ", symbol.Address)
			colorFunc.Println(symbol.Name)
		}
	},
}

func init() {
	RootCmd.AddCommand(symbolsCmd)
	symbolsCmd.Flags().StringP("output", "o", "", "Output file. If not specified, the table is dumped to stdout.")
}
