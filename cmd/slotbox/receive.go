package main

import (
	"math"

	"github.com/spf13/cobra"
)

// maxCapacity asks for the whole message whatever the server's buffer size;
// the server clamps it to that size.
const maxCapacity = math.MaxInt32

// receiveCmd prints the message stored on a channel.
var receiveCmd = &cobra.Command{
	Use:   "receive <endpoint-ref> <channel>",
	Short: "Print the message stored on a channel",
	Long: `Open a session on the endpoint, select the channel, read the message and
close the session. The message bytes are written to stdout exactly as stored,
without a trailing newline. Reading does not consume the message.

Exit codes:
  0 - Message printed
  1 - Failure, including an empty channel (diagnostic printed to stderr)

Example:
  slotbox receive /tmp/slotbox.sock/3 7`,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE:         runReceive,
}

func init() {
	rootCmd.AddCommand(receiveCmd)
}

func runReceive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	h, closeFn, err := openChannel(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	defer closeFn()

	msg, err := h.Receive(ctx, maxCapacity)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(msg)
	return err
}
