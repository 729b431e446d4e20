package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nostrstore/nostrstore/internal/note"
	"github.com/nostrstore/nostrstore/internal/profile"
	"github.com/nostrstore/nostrstore/internal/store"
)

// noteView is a stored note with its key.
type noteView struct {
	Key  uint64    `json:"key"`
	Note note.Note `json:"note"`
}

func (v noteView) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d\t%s\n", v.Key, v.Note.RenderJSON())
	return err
}

type queryView struct {
	Notes     []noteView `json:"notes"`
	Truncated bool       `json:"truncated"`
}

func (v queryView) WriteText(w io.Writer) error {
	for _, n := range v.Notes {
		if err := n.WriteText(w); err != nil {
			return err
		}
	}
	if v.Truncated {
		_, err := fmt.Fprintln(w, "# more matches beyond the limit")
		return err
	}
	return nil
}

type countView struct {
	Count int `json:"count"`
}

func (v countView) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, v.Count)
	return err
}

// profileView adds the hex pubkey that profile.Record leaves out of JSON.
type profileView struct {
	PubKey string `json:"pubkey"`
	profile.Record
}

func newProfileView(rec profile.Record) profileView {
	return profileView{PubKey: hex.EncodeToString(rec.PubKey[:]), Record: rec}
}

func (v profileView) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "pubkey:\t%s\n", v.PubKey)
	fmt.Fprintf(tw, "created_at:\t%d\n", v.CreatedAt)
	fmt.Fprintf(tw, "note_key:\t%d\n", v.NoteKey)
	for _, f := range []struct{ name, value string }{
		{"name", v.Name},
		{"display_name", v.DisplayName},
		{"about", v.About},
		{"picture", v.Picture},
		{"banner", v.Banner},
		{"nip05", v.NIP05},
		{"lud16", v.LUD16},
		{"lud06", v.LUD06},
		{"website", v.Website},
	} {
		if f.value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", f.name, f.value)
		}
	}
	return tw.Flush()
}

type searchView struct {
	Profiles []profileView `json:"profiles"`
}

func (v searchView) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range v.Profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.PubKey, p.Name, p.DisplayName)
	}
	return tw.Flush()
}

// statsView renders store.Stats with row names.
type statsView struct {
	Tables map[string]store.Stat `json:"tables"`
	Kinds  map[string]store.Stat `json:"kinds"`
	Other  store.Stat            `json:"other"`
	stats  store.Stats
}

func newStatsView(st store.Stats) statsView {
	v := statsView{
		Tables: make(map[string]store.Stat, store.TableCount),
		Kinds:  make(map[string]store.Stat, store.CommonKindCount),
		Other:  st.Other,
		stats:  st,
	}
	for i, s := range st.Tables {
		v.Tables[store.TableName(i)] = s
	}
	for i, s := range st.Kinds {
		v.Kinds[store.CommonKindName(i)] = s
	}
	return v
}

func (v statsView) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "name\tcount\tkey_bytes\tvalue_bytes\t")
	row := func(name string, s store.Stat) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t\n", name, s.Count, s.KeyBytes, s.ValueBytes)
	}
	for i, s := range v.stats.Tables {
		row(store.TableName(i), s)
	}
	for i, s := range v.stats.Kinds {
		kind, _ := store.CommonKind(i)
		row(fmt.Sprintf("kind %d (%s)", kind, store.CommonKindName(i)), s)
	}
	row("kind other", v.stats.Other)
	return tw.Flush()
}

// ingestSummary tallies one ingest run.
type ingestSummary struct {
	Lines      int            `json:"lines"`
	Stored     int            `json:"stored"`
	Duplicates int            `json:"duplicates"`
	Rejected   int            `json:"rejected"`
	Reasons    map[string]int `json:"reasons,omitempty"`
}

func (s *ingestSummary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "lines: %d, stored: %d, duplicates: %d, rejected: %d\n",
		s.Lines, s.Stored, s.Duplicates, s.Rejected)
	return err
}
