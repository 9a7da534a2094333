package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"github.com/zfogg/sidechain/feedengine/internal/apiclient"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
)

var (
	bold    = color.New(color.Bold)
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed)
	info    = color.New(color.FgCyan)
	warning = color.New(color.FgYellow)
	faint   = color.New(color.Faint)
)

var bucketColors = map[string]*color.Color{
	"gray":   color.New(color.FgHiBlack),
	"green":  color.New(color.FgGreen),
	"blue":   color.New(color.FgBlue),
	"purple": color.New(color.FgMagenta),
	"gold":   color.New(color.FgYellow, color.Bold),
}

func jsonOutput() bool {
	return viper.GetString("output.format") == "json"
}

func printJSON(v interface{}) error {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printSuccess(format string, args ...interface{}) {
	if !jsonOutput() {
		success.Fprintf(os.Stderr, "✓ "+format+"\n", args...)
	}
}

func printWarning(format string, args ...interface{}) {
	warning.Fprintf(os.Stderr, "! "+format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	failure.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printPage(page *feed.Page) error {
	if jsonOutput() {
		return printJSON(page)
	}
	if len(page.Items) == 0 {
		info.Println("No items")
	}
	for _, item := range page.Items {
		printItem(item)
	}
	if len(page.Degraded) > 0 {
		printWarning("partial page, unavailable sources: %s", strings.Join(page.Degraded, ", "))
	}
	if page.HasMore {
		faint.Printf("next cursor: %s\n", page.NextCursor)
	}
	return nil
}

func printItem(item feed.FeedItem) {
	if item.IsRepost() {
		info.Printf("↻ %s reposted", item.RepostActor.Display)
		printBadge(item.ActorReputation)
		faint.Printf("  %s\n", ago(*item.RepostTimestamp))
	}
	bold.Print(item.Owner.Display)
	printBadge(item.OwnerReputation)
	faint.Printf("  %s  %s\n", ago(item.PrimaryTimestamp), item.ID)
	for _, line := range wrap(item.Content, terminalWidth()-2) {
		fmt.Printf("  %s\n", line)
	}
	faint.Printf("  ♥ %d  ↻ %d  ✉ %d\n\n", item.Counters.Favorites, item.Counters.Reposts, item.Counters.Replies)
}

func printBadge(rep *feed.Reputation) {
	if rep == nil {
		return
	}
	c, ok := bucketColors[rep.Bucket]
	if !ok {
		c = faint
	}
	c.Printf(" [%d %s]", rep.Score, rep.Bucket)
}

func printReputation(rep *apiclient.Reputation) error {
	if jsonOutput() {
		return printJSON(rep)
	}
	bold.Printf("%s  ", rep.UserID)
	printBadge(&feed.Reputation{Score: rep.Score, Bucket: rep.Bucket})
	fmt.Println()
	return nil
}

const defaultWidth = 80

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// wrap breaks text on spaces so no line exceeds width runes. Words longer
// than width are left whole.
func wrap(text string, width int) []string {
	if width < 20 {
		width = 20
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var line strings.Builder
		n := 0
		for _, word := range strings.Fields(para) {
			wl := len([]rune(word))
			if n > 0 && n+1+wl > width {
				lines = append(lines, line.String())
				line.Reset()
				n = 0
			}
			if n > 0 {
				line.WriteByte(' ')
				n++
			}
			line.WriteString(word)
			n += wl
		}
		lines = append(lines, line.String())
	}
	return lines
}

func ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2 2006")
	}
}
