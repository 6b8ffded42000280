// Command inspect prints what tfetch would fetch for a torrent and pattern
// without starting a transfer.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/NamanBalaji/tfetch/internal/console"
	"github.com/NamanBalaji/tfetch/internal/errors"
	"github.com/NamanBalaji/tfetch/internal/fetch"
	"github.com/NamanBalaji/tfetch/internal/planner"
	"github.com/NamanBalaji/tfetch/internal/selection"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

func main() {
	pattern := flag.String("pattern", "", "regular expression matched against the whole in-torrent path")
	readahead := flag.Int("readahead", 4, "pieces per file fetched ahead of the rest")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: inspect [-pattern re] <torrent url or path>")
		os.Exit(errors.ExitFailure)
	}

	if err := inspect(context.Background(), os.Stdout, flag.Arg(0), *pattern, *readahead); err != nil {
		fmt.Fprintln(os.Stderr, console.Error(err))
		os.Exit(errors.ExitCode(err))
	}
}

func inspect(ctx context.Context, w io.Writer, source, pattern string, readahead int) error {
	data, err := fetch.New(nil, 0).Fetch(ctx, source)
	if err != nil {
		return err
	}

	md, err := metainfo.Decode(data)
	if err != nil {
		return errors.NewMetadataError(err, source)
	}

	sel, err := selection.Select(md, pattern)
	if err != nil && !errors.Is(err, selection.ErrNoFilesMatched) {
		return errors.NewConfigError(err, "pattern")
	}

	fmt.Fprintf(w, "%s  %s\n", md.Name, console.DetailStyle.Render(md.HexHash()))
	fmt.Fprintf(w, "%d files, %s, %d pieces of %s\n\n",
		len(md.Files), humanize.IBytes(uint64(md.TotalLength())), md.NumPieces(), humanize.IBytes(uint64(md.PieceLength)))

	for i, f := range md.Files {
		mark := " "
		style := console.DetailStyle

		if sel != nil && sel.Contains(i) {
			mark = "*"
			style = console.ProgressDoneStyle
		}

		fmt.Fprintf(w, "%s %10s  %s\n", mark, humanize.IBytes(uint64(f.Length)), style.Render(selection.MatchPath(md, i)))
	}

	if sel == nil {
		return errors.NewSelectionError(err, pattern)
	}

	plan := planner.Plan(md, sel)

	fmt.Fprintf(w, "\nselected %s in %d pieces\n", humanize.IBytes(uint64(sel.Bytes())), len(plan))

	for _, tier := range planner.Tiers(md, sel, plan, readahead) {
		fmt.Fprintf(w, "  %-9s %s\n", tier.Priority, summarize(tier.Pieces))
	}

	return nil
}

// summarize collapses consecutive piece indices into ranges.
func summarize(pieces []int) string {
	var parts []string

	for i := 0; i < len(pieces); {
		j := i
		for j+1 < len(pieces) && pieces[j+1] == pieces[j]+1 {
			j++
		}

		if i == j {
			parts = append(parts, fmt.Sprint(pieces[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", pieces[i], pieces[j]))
		}

		i = j + 1
	}

	return strings.Join(parts, ",")
}
