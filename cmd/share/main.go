package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blackmichael/share-your-sound/internal/client"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var (
		server string
		title  string
		url    string
		report int64
		list   bool
	)

	fs := flag.NewFlagSet("share", flag.ContinueOnError)
	fs.StringVar(&server, "server", envOrDefault("SHARE_SERVER", "http://localhost:3000"), "Board server URL")
	fs.StringVar(&title, "title", "", "Song title to share")
	fs.StringVar(&url, "url", "", "YouTube, Spotify or SoundCloud link to share")
	fs.Int64Var(&report, "report", 0, "Report the post with this id")
	fs.BoolVar(&list, "list", false, "List the posts currently on the board")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c := client.NewClient(server)

	switch {
	case list:
		posts, err := c.ListPosts(ctx)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			fmt.Fprintln(out, "The board is empty.")
			return nil
		}
		for _, p := range posts {
			fmt.Fprintf(out, "#%d  %s\n     %s  [%s, %d reports, expires %s]\n",
				p.ID, p.SongTitle, p.SongURL, p.Platform, p.Reports, p.ExpiresAt.Local().Format(time.Kitchen))
		}
		return nil

	case report > 0:
		if err := c.ReportPost(ctx, report); err != nil {
			return err
		}
		fmt.Fprintf(out, "Reported post #%d\n", report)
		return nil

	case title != "" || url != "":
		if title == "" || url == "" {
			return fmt.Errorf("--title and --url are both required to share a song")
		}
		if err := c.SubmitPost(ctx, title, url); err != nil {
			return err
		}
		fmt.Fprintf(out, "Shared %q\n", title)
		return nil

	default:
		return fmt.Errorf("nothing to do: pass --list, --report ID, or --title and --url")
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
