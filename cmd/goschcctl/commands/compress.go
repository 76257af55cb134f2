package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

type wireRequest struct {
	ContextID string `json:"context_id"`
	Direction string `json:"direction"`
	Hex       string `json:"hex"`
}

type compressResult struct {
	RuleID     string `json:"rule_id"`
	Hex        string `json:"hex"`
	BytesSaved int    `json:"bytes_saved"`
}

type decompressResult struct {
	RuleID string `json:"rule_id"`
	Hex    string `json:"hex"`
}

func compressCmd() *cobra.Command {
	var contextID, direction string

	cmd := &cobra.Command{
		Use:   "compress <hex>",
		Short: "Compress a hex-encoded packet against a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var result compressResult
			req := wireRequest{ContextID: contextID, Direction: direction, Hex: args[0]}
			if err := postJSON("/v1/compress", req, &result); err != nil {
				return fmt.Errorf("compress: %w", err)
			}
			fmt.Println(formatCompressResult(result, outputFormat))
			return nil
		},
	}

	cmd.Flags().StringVar(&contextID, "context", "", "context id to compress against (required)")
	cmd.Flags().StringVar(&direction, "direction", "up", "packet direction: up or down")
	_ = cmd.MarkFlagRequired("context")

	return cmd
}

func decompressCmd() *cobra.Command {
	var contextID, direction string

	cmd := &cobra.Command{
		Use:   "decompress <hex>",
		Short: "Decompress a hex-encoded SCHC bitstream against a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var result decompressResult
			req := wireRequest{ContextID: contextID, Direction: direction, Hex: args[0]}
			if err := postJSON("/v1/decompress", req, &result); err != nil {
				return fmt.Errorf("decompress: %w", err)
			}
			fmt.Println(formatDecompressResult(result, outputFormat))
			return nil
		},
	}

	cmd.Flags().StringVar(&contextID, "context", "", "context id to decompress against (required)")
	cmd.Flags().StringVar(&direction, "direction", "down", "packet direction: up or down")
	_ = cmd.MarkFlagRequired("context")

	return cmd
}
