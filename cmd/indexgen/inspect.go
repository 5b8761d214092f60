package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/indexgen/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <index-file> <word>",
		Short: "Print the entry for one word of an index file",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := segment.OpenReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			word := tokenizer.Lower(args[1])
			e, ok, err := r.Search(word)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.Newf(apperrors.ErrWordNotFound, apperrors.ExitFailure, "%q", word)
			}
			fmt.Fprintln(cmd.OutOrStdout(), segment.FormatEntry(e))
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <index-file>",
		Short: "Verify that an index file is well formed and sorted",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return apperrors.Newf(apperrors.ErrIO, apperrors.ExitIO, "opening index: %v", err)
			}
			defer f.Close()

			n, err := segment.Verify(f)
			if err != nil {
				return apperrors.Newf(apperrors.ErrInvalidInput, apperrors.ExitFailure, "%s: %v", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, sorted\n", args[0], n)
			return nil
		},
	}
}
