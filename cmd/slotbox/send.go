package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jpalmerr/slotbox"
	"github.com/jpalmerr/slotbox/client"
	"github.com/spf13/cobra"
)

// sendCmd stores one message on a channel.
var sendCmd = &cobra.Command{
	Use:   "send <endpoint-ref> <channel> <message>",
	Short: "Store a message on a channel",
	Long: `Open a session on the endpoint, select the channel, write the message and
close the session. The message replaces whatever the channel held before.

The endpoint reference is <address>/<id>, where address is a unix socket
path or host:port.

Exit codes:
  0 - Message stored (nothing is printed)
  1 - Failure (diagnostic printed to stderr)

Example:
  slotbox send /tmp/slotbox.sock/3 7 hello
  slotbox send 127.0.0.1:7070/3 7 hello`,
	Args:         cobra.ExactArgs(3),
	SilenceUsage: true,
	RunE:         runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	h, closeFn, err := openChannel(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := h.Send(ctx, []byte(args[2])); err != nil {
		return err
	}
	return nil
}

// openChannel opens a handle on ref and binds it to the channel named by
// rawChannel. The returned func closes the handle and the client.
func openChannel(ctx context.Context, ref, rawChannel string) (*client.Handle, func(), error) {
	ep, err := client.ParseEndpoint(ref)
	if err != nil {
		return nil, nil, err
	}
	ch, err := strconv.ParseUint(rawChannel, 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: channel %q is not an unsigned integer", slotbox.ErrInvalidArgument, rawChannel)
	}

	c := client.New(ep)
	h, err := c.Open(ctx)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	closeFn := func() {
		_ = h.Close(ctx)
		c.Close()
	}

	if err := h.SelectChannel(ctx, slotbox.ChannelID(ch)); err != nil {
		closeFn()
		return nil, nil, err
	}
	return h, closeFn, nil
}
