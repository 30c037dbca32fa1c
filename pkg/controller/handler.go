package controller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/downfa11-org/journal/pkg/config"
	"github.com/downfa11-org/journal/pkg/journal"
	"github.com/downfa11-org/journal/util"
)

const defaultReadMax = 16

// CommandHandler executes text commands against a journal of strings.
type CommandHandler struct {
	Journal *journal.Journal[string]
	Config  *config.Config
}

func NewCommandHandler(j *journal.Journal[string], cfg *config.Config) *CommandHandler {
	return &CommandHandler{Journal: j, Config: cfg}
}

func (ch *CommandHandler) logCommandResult(cmd, response string) {
	status := "SUCCESS"
	if strings.HasPrefix(response, "ERROR:") {
		status = "FAILURE"
	}
	cleanResponse := strings.ReplaceAll(response, "\n", " ")
	util.Debug("status: '%s', command: '%s' to Response '%s'", status, cmd, cleanResponse)
}

// HandleCommand parses one command line and returns the response text.
// Failed commands answer with an "ERROR:" prefix.
func (ch *CommandHandler) HandleCommand(rawCmd string, ctx *ClientContext) string {
	cmd := strings.TrimSpace(rawCmd)

	if cmd == "" {
		resp := "ERROR: empty command"
		ch.logCommandResult(rawCmd, resp)
		return resp
	}

	keyword, rest, _ := strings.Cut(cmd, " ")
	args := parseKeyValueArgs(rest)

	var resp string
	switch strings.ToUpper(keyword) {
	case "HELP":
		resp = `Available commands:
APPEND message=<text> - append an entry
READ [from=<N>] [max=<N>] - read entries, continuing from the last READ when from is omitted
TRUNCATE index=<N> - discard every entry after index
COMPACT index=<N> - remove whole segments below index
RESET index=<N> - discard everything and restart at index
FLUSH - flush the tail segment
STATS - show journal and segment summary
HELP - show this help
EXIT - exit`

	case "APPEND":
		resp = ch.handleAppend(args)

	case "READ":
		resp = ch.handleRead(args, ctx)

	case "TRUNCATE":
		resp = ch.withIndex(args, "TRUNCATE index=<N>", func(index uint64) string {
			if err := ch.Journal.Truncate(index); err != nil {
				return fmt.Sprintf("ERROR: truncate failed: %v", err)
			}
			return fmt.Sprintf("OK last=%d", ch.Journal.LastIndex())
		})

	case "COMPACT":
		resp = ch.withIndex(args, "COMPACT index=<N>", func(index uint64) string {
			if err := ch.Journal.Compact(index); err != nil {
				return fmt.Sprintf("ERROR: compact failed: %v", err)
			}
			return fmt.Sprintf("OK first=%d", ch.Journal.FirstIndex())
		})

	case "RESET":
		resp = ch.withIndex(args, "RESET index=<N>", func(index uint64) string {
			if err := ch.Journal.Writer().Reset(index); err != nil {
				return fmt.Sprintf("ERROR: reset failed: %v", err)
			}
			ctx.SetNextIndex(index)
			return fmt.Sprintf("OK next=%d", index)
		})

	case "FLUSH":
		if err := ch.Journal.Flush(); err != nil {
			resp = fmt.Sprintf("ERROR: flush failed: %v", err)
		} else {
			resp = "OK"
		}

	case "STATS":
		resp = ch.stats()

	default:
		resp = fmt.Sprintf("ERROR: unknown command: %s", keyword)
	}

	ch.logCommandResult(rawCmd, resp)
	return resp
}

func (ch *CommandHandler) handleAppend(args map[string]string) string {
	msg, ok := args["message"]
	if !ok || msg == "" {
		return "ERROR: invalid APPEND syntax. Expected: APPEND message=<text>"
	}
	e, err := ch.Journal.Append(msg)
	if err != nil {
		return fmt.Sprintf("ERROR: append failed: %v", err)
	}
	return fmt.Sprintf("OK index=%d", e.Index)
}

func (ch *CommandHandler) handleRead(args map[string]string, ctx *ClientContext) string {
	from := ctx.NextIndex
	if from < ch.Journal.FirstIndex() {
		from = ch.Journal.FirstIndex()
	}
	if v, ok := args["from"]; ok {
		n, err := util.ParseUint64(v)
		if err != nil {
			return "ERROR: invalid READ syntax. Expected: READ [from=<N>] [max=<N>]"
		}
		from = n
	}
	limit := defaultReadMax
	if v, ok := args["max"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return "ERROR: invalid READ syntax. Expected: READ [from=<N>] [max=<N>]"
		}
		limit = n
	}

	r, err := ch.Journal.OpenReader(from)
	if err != nil {
		return fmt.Sprintf("ERROR: read failed: %v", err)
	}
	defer r.Close()

	var lines []string
	for len(lines) < limit && r.HasNext() {
		e, err := r.Next()
		if err != nil {
			if errors.Is(err, journal.ErrNoSuchEntry) {
				break
			}
			return fmt.Sprintf("ERROR: read failed at %d: %v", r.NextIndex(), err)
		}
		lines = append(lines, fmt.Sprintf("%d: %s", e.Index, e.Entry))
	}
	ctx.SetNextIndex(r.NextIndex())

	if len(lines) == 0 {
		return fmt.Sprintf("(no entries from %d)", from)
	}
	return strings.Join(lines, "\n")
}

func (ch *CommandHandler) withIndex(args map[string]string, usage string, fn func(uint64) string) string {
	v, ok := args["index"]
	if !ok {
		return "ERROR: invalid syntax. Expected: " + usage
	}
	index, err := util.ParseUint64(v)
	if err != nil {
		return "ERROR: invalid syntax. Expected: " + usage
	}
	return fn(index)
}

func (ch *CommandHandler) stats() string {
	var b strings.Builder
	fmt.Fprintf(&b, "journal=%s first=%d last=%d", ch.Journal.Name(), ch.Journal.FirstIndex(), ch.Journal.LastIndex())
	for _, s := range ch.Journal.Segments() {
		fmt.Fprintf(&b, "\nsegment id=%d first=%d last=%d size=%d sealed=%v", s.ID, s.FirstIndex, s.LastIndex, s.Size, s.Sealed)
	}
	return b.String()
}

func parseKeyValueArgs(argsStr string) map[string]string {
	result := make(map[string]string)

	messageIdx := strings.Index(argsStr, "message=")

	if messageIdx != -1 {
		beforeMessage := argsStr[:messageIdx]
		parts := strings.Fields(beforeMessage)
		for _, part := range parts {
			kv := strings.SplitN(part, "=", 2)
			if len(kv) == 2 {
				result[kv[0]] = kv[1]
			}
		}
		result["message"] = strings.TrimSpace(argsStr[messageIdx+8:])
	} else {
		parts := strings.Fields(argsStr)
		for _, part := range parts {
			kv := strings.SplitN(part, "=", 2)
			if len(kv) == 2 {
				result[kv[0]] = kv[1]
			}
		}
	}
	return result
}
