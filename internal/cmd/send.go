package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/observability"
	"github.com/namelens/chatgate/internal/output"
)

var (
	sendFile    string
	sendModel   string
	sendSystem  string
	sendTimeout time.Duration
	sendFormat  string
	sendOut     string
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a chat request",
	Long: `Send one chat request and print the reply.

The conversation comes from --file (YAML or JSON with a "messages" list, "-"
for stdin), the positional message, or piped stdin. A positional message is
appended to the file's conversation as a user turn.

Examples:
  chatgate send "Explain goroutines in one paragraph"
  chatgate send --file conversation.yaml --output-format json
  echo "hello" | chatgate send --model gpt-4o`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "request file (YAML or JSON); - reads stdin")
	sendCmd.Flags().StringVarP(&sendModel, "model", "m", "", "model override")
	sendCmd.Flags().StringVar(&sendSystem, "system", "", "system message prepended to the conversation")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "overall deadline for the request (0 uses ailink.default_timeout)")
	sendCmd.Flags().StringVar(&sendFormat, "output-format", string(output.FormatText), "Output format: text|table|json|markdown")
	sendCmd.Flags().StringVar(&sendOut, "out", "", "Write output to a file (default stdout)")
}

func runSend(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(sendFormat, output.FormatText)
	if err != nil {
		return err
	}

	req, err := buildSendRequest(cmd.InOrStdin(), stdinIsTerminal(), args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog := componentLogger(cfg)
	defer func() { _ = closeLog() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	session, err := openChatSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	sendCtx := ctx
	if sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, sendTimeout)
		defer cancel()
	}

	resp, err := session.Service.Send(sendCtx, req)
	if err != nil {
		return err
	}

	if resp.Demo {
		observability.CLILogger.Warn("No API key found; showing a demo reply. Run 'chatgate credentials set' or export CHATGATE_API_KEY.")
	}

	rendered, err := output.NewFormatter(format).FormatReply(resp)
	if err != nil {
		return err
	}

	sink, err := openSink(sendOut)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

// buildSendRequest assembles the request from --file, flags and args.
// Piped stdin is read as the message when neither a file nor an argument is
// given.
func buildSendRequest(stdin io.Reader, interactive bool, args []string) (ailink.SendRequest, error) {
	var req ailink.SendRequest

	switch path := strings.TrimSpace(sendFile); path {
	case "":
	case "-":
		parsed, err := parseRequestFile(stdin)
		if err != nil {
			return req, err
		}
		req = parsed
	default:
		f, err := os.Open(path)
		if err != nil {
			return req, err
		}
		parsed, err := parseRequestFile(f)
		_ = f.Close()
		if err != nil {
			return req, fmt.Errorf("%s: %w", path, err)
		}
		req = parsed
	}

	var message string
	if len(args) > 0 {
		message = args[0]
	} else if sendFile == "" && !interactive && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return req, fmt.Errorf("read stdin: %w", err)
		}
		message = string(data)
	}
	if strings.TrimSpace(message) != "" {
		req.Messages = append(req.Messages, ailink.Message{Role: ailink.RoleUser, Content: strings.TrimSpace(message)})
	}

	if system := strings.TrimSpace(sendSystem); system != "" {
		req.Messages = append([]ailink.Message{{Role: ailink.RoleSystem, Content: system}}, req.Messages...)
	}
	if model := strings.TrimSpace(sendModel); model != "" {
		req.Model = model
	}

	if len(req.Messages) == 0 {
		return req, errors.New("nothing to send: pass a message, --file, or pipe text on stdin")
	}
	return req, nil
}

// parseRequestFile decodes a request document. JSON parses as YAML, so one
// decoder covers both.
func parseRequestFile(r io.Reader) (ailink.SendRequest, error) {
	var req ailink.SendRequest
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, errors.New("request file is empty")
		}
		return req, fmt.Errorf("parse request file: %w", err)
	}
	return req, nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
