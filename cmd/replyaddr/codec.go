package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/busybox42/replyaddr/pkg/replyaddr"
)

func (c *cli) newEncodeCmd() *cobra.Command {
	var (
		from      string
		rcpt      string
		tokenOnly bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Mint a reply address",
		Long:  "Mint the reply address for a message from --from to the local recipient --rcpt.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.newRuntime(cmd, nil)
			if err != nil {
				return err
			}

			addr, err := rt.service.ReplyAddress(cmd.Context(), from, rcpt)
			if err != nil {
				return err
			}
			if tokenOnly {
				addr = addr[:strings.LastIndexByte(addr, '@')]
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "envelope sender (MAIL FROM)")
	cmd.Flags().StringVar(&rcpt, "rcpt", "", "local-part of the local recipient (RCPT TO)")
	cmd.Flags().BoolVar(&tokenOnly, "token-only", false, "print the local-part token without the reply domain")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("rcpt")

	return cmd
}

type decodeOutput struct {
	Kind            string `json:"kind"`
	Format          string `json:"format,omitempty"`
	MailFrom        string `json:"mail_from,omitempty"`
	RcptToLocalPart string `json:"rcpt_to_local_part,omitempty"`
	ID              *int64 `json:"id,omitempty"`
}

func (c *cli) newDecodeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "decode <address|token>",
		Short: "Resolve a reply or bounce address",
		Long: `Resolve a reply or bounce address. A full address must be under the
configured reply or bounce domain; a bare token is tried as both.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.newRuntime(cmd, nil)
			if err != nil {
				return err
			}

			out, ok := rt.decode(cmd, args[0])
			if !ok {
				return errUnknownAddress
			}
			return printDecode(cmd, out, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (rt *app) decode(cmd *cobra.Command, arg string) (decodeOutput, bool) {
	ctx := cmd.Context()

	if !strings.Contains(arg, "@") {
		info, id, format, ok := rt.service.DecodeToken(ctx, arg)
		if !ok {
			return decodeOutput{}, false
		}
		if format == 0 {
			return decodeOutput{Kind: "bounce", ID: &id}, true
		}
		return replyOutput(info, format), true
	}

	if info, ok := rt.service.ResolveReply(ctx, arg); ok {
		return replyOutput(info, 0), true
	}
	if id, ok := rt.service.ResolveBounce(ctx, arg); ok {
		return decodeOutput{Kind: "bounce", ID: &id}, true
	}
	return decodeOutput{}, false
}

func replyOutput(info replyaddr.ReplyInfo, format replyaddr.Format) decodeOutput {
	out := decodeOutput{Kind: "reply", MailFrom: info.MailFrom, RcptToLocalPart: info.RcptToLocalPart}
	if format != 0 {
		out.Format = format.String()
	}
	return out
}

func printDecode(cmd *cobra.Command, out decodeOutput, asJSON bool) error {
	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if out.Kind == "bounce" {
		fmt.Fprintf(w, "id: %d\n", *out.ID)
		return nil
	}
	fmt.Fprintf(w, "mail_from: %s\n", out.MailFrom)
	fmt.Fprintf(w, "rcpt_to_local_part: %s\n", out.RcptToLocalPart)
	if out.Format != "" {
		fmt.Fprintf(w, "format: %s\n", out.Format)
	}
	return nil
}

func (c *cli) newBounceCmd() *cobra.Command {
	bounceCmd := &cobra.Command{
		Use:   "bounce",
		Short: "Mint and resolve bounce addresses",
	}

	var tokenOnly bool
	encodeCmd := &cobra.Command{
		Use:   "encode <id>",
		Short: "Mint a bounce address for a numeric id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], replyaddr.ErrInvalidBounceID)
			}

			rt, err := c.newRuntime(cmd, nil)
			if err != nil {
				return err
			}

			addr, err := rt.service.BounceAddress(cmd.Context(), id)
			if err != nil {
				return err
			}
			if tokenOnly {
				addr = addr[:strings.LastIndexByte(addr, '@')]
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
	encodeCmd.Flags().BoolVar(&tokenOnly, "token-only", false, "print the local-part token without the bounce domain")

	decodeCmd := &cobra.Command{
		Use:   "decode <address|token>",
		Short: "Resolve a bounce address to its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.newRuntime(cmd, nil)
			if err != nil {
				return err
			}

			var (
				id int64
				ok bool
			)
			if strings.Contains(args[0], "@") {
				id, ok = rt.service.ResolveBounce(cmd.Context(), args[0])
			} else {
				_, tokenID, format, found := rt.service.DecodeToken(cmd.Context(), args[0])
				id = tokenID
				ok = found && format == 0
			}
			if !ok {
				return errUnknownAddress
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", id)
			return nil
		},
	}

	bounceCmd.AddCommand(encodeCmd, decodeCmd)
	return bounceCmd
}
