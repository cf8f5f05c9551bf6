package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/logging"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
)

const (
	defaultTop = 10
	maxTop     = 25
)

type SnapshotReader interface {
	FindAsset(ctx context.Context, query string) (domain.PublishedRecord, error)
	Top(ctx context.Context, n int) ([]domain.PublishedRecord, error)
	LatestRun(ctx context.Context) (domain.RunReport, error)
}

// Commands renders replies for the bot commands. It has no Telegram
// dependency so replies can be checked directly.
type Commands struct {
	snapshots SnapshotReader
	timeout   time.Duration
}

func NewCommands(snapshots SnapshotReader) *Commands {
	return &Commands{snapshots: snapshots, timeout: 10 * time.Second}
}

func (c *Commands) Coin(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /coin bitcoin (asset id, symbol or name)"
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := strings.Join(args, " ")
	rec, err := c.snapshots.FindAsset(ctx, query)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("%s is not in the published snapshot", query)
	}
	if err != nil {
		return fmt.Sprintf("Error reading %s: %v", query, err)
	}
	return FormatRecord(rec)
}

func (c *Commands) Top(ctx context.Context, args []string) string {
	n := defaultTop
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return "Usage: /top 10"
		}
		n = min(v, maxTop)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	records, err := c.snapshots.Top(ctx, n)
	if err != nil {
		return fmt.Sprintf("Error reading snapshot: %v", err)
	}
	if len(records) == 0 {
		return "No snapshot has been published yet"
	}
	var b strings.Builder
	for i, r := range records {
		fmt.Fprintf(&b, "%d. %s (%s) %s %s\n", i+1, r.Name, strings.ToUpper(r.Symbol),
			money(r.CurrentPrice), pct(r.PriceChangePct24h))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) Status(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report, err := c.snapshots.LatestRun(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return "No pipeline run recorded yet"
	}
	if err != nil {
		return fmt.Sprintf("Error reading run status: %v", err)
	}
	msg := fmt.Sprintf("Run %s: %s\nStarted: %s\nPublished %d of %d",
		report.RunID, report.Status, report.StartedAt.UTC().Format(time.RFC3339),
		report.Published, report.Requested)
	if len(report.Failed) > 0 {
		msg += "\nFailed: " + strings.Join(report.FailedIDs(), ", ")
	}
	if len(report.Unresolved) > 0 {
		msg += "\nUnresolved: " + strings.Join(report.Unresolved, ", ")
	}
	if report.Error != "" {
		msg += "\nError: " + report.Error
	}
	return msg
}

// FormatRecord renders the bot reply for one published asset.
func FormatRecord(r domain.PublishedRecord) string {
	lines := []string{
		fmt.Sprintf("%s (%s)", r.Name, strings.ToUpper(r.Symbol)),
		"Price: " + money(r.CurrentPrice),
		"24h Change: " + pct(r.PriceChangePct24h),
		"24h Volume: " + money(r.TotalVolume),
		"RSI(14): " + num(r.RSI14),
		"Sharpe: " + num(r.SharpeRatio),
		"Predicted: " + money(r.PredictedPrice),
		fmt.Sprintf("Sentiment: %s (%d items, trending %s)", r.Sentiment.Label, r.Sentiment.Volume, r.Sentiment.Trending),
	}
	if r.ContractAddress.Valid {
		lines = append(lines, "Contract: "+r.ContractAddress.String)
	}
	return strings.Join(lines, "\n")
}

func money(v null.Float) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("$%.2f", v.Float64)
}

func pct(v null.Float) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v.Float64)
}

func num(v null.Float) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v.Float64)
}

// Start long-polls Telegram until ctx is done. An empty token disables the bot.
func Start(ctx context.Context, token string, snapshots SnapshotReader, logger zerolog.Logger) error {
	log := logging.Component(logger, "telegram-bot")
	if token == "" {
		log.Info().Msg("telegram token not set, skipping bot startup")
		return nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	cmds := NewCommands(snapshots)
	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/coin", func(c tele.Context) error {
		return c.Send(cmds.Coin(ctx, c.Args()))
	})
	b.Handle("/top", func(c tele.Context) error {
		return c.Send(cmds.Top(ctx, c.Args()))
	})
	b.Handle("/status", func(c tele.Context) error {
		return c.Send(cmds.Status(ctx))
	})

	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	log.Info().Msg("telegram bot started")
	go b.Start()
	return nil
}
