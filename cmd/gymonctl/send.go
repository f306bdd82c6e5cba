package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/gymon/internal/protocol/frame"
	"github.com/danmuck/gymon/internal/server"
	"github.com/spf13/cobra"
)

var errReplyIsError = errors.New("server replied with an error")

var sendCmd = &cobra.Command{
	Use:   "send <request>...",
	Short: "Send one request to a running daemon and print the reply",
	Example: `  gymonctl send gymea status
  gymonctl send --addr gymea-host:32001 gymea restart 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().String("addr", net.JoinHostPort("127.0.0.1", strconv.Itoa(server.DefaultPort)), "daemon address")
	sendCmd.Flags().Duration("timeout", 30*time.Second, "overall request timeout")
}

func runSend(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	reply, err := sendRequest(ctx, addr, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.ReplaceAll(reply.Body, frame.LineEnding, "\n"))
	if reply.IsError() {
		return errReplyIsError
	}
	return nil
}

func sendRequest(ctx context.Context, addr, request string) (frame.Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return frame.Reply{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(frame.EncodeRequest(request)); err != nil {
		return frame.Reply{}, fmt.Errorf("send request: %w", err)
	}
	reply, err := frame.ReadReply(bufio.NewReader(conn))
	if err != nil {
		return frame.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
