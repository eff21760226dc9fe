package skills

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/logging"
)

//go:embed registry
var defaultRegistry embed.FS

// Index implements core.SkillsIndex. The entry list is immutable after load;
// only the body cache mutates.
type Index struct {
	entries []core.SkillEntry
	fsys    fs.FS
	cache   *ristretto.Cache
	cfg     core.Config
	logger  logging.Logger
}

var _ core.SkillsIndex = (*Index)(nil)

// NewIndex parses a registry from fsys: a SKILLS.md index at the root plus
// one <id>.md body per entry.
func NewIndex(fsys fs.FS, cfg core.Config, logger logging.Logger) (*Index, error) {
	data, err := fs.ReadFile(fsys, "SKILLS.md")
	if err != nil {
		return nil, fmt.Errorf("read skills index: %w", err)
	}
	entries, err := parseIndex(string(data))
	if err != nil {
		return nil, err
	}

	// Bodies are small markdown documents; the cache is sized generously so
	// every body survives for the process lifetime.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 10,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create body cache: %w", err)
	}

	return &Index{entries: entries, fsys: fsys, cache: cache, cfg: cfg, logger: logging.OrNoOp(logger)}, nil
}

// NewDefaultIndex loads the embedded SRE runbook registry.
func NewDefaultIndex(cfg core.Config, logger logging.Logger) (*Index, error) {
	sub, err := fs.Sub(defaultRegistry, "registry")
	if err != nil {
		return nil, err
	}
	return NewIndex(sub, cfg, logger)
}

// parseIndex reads the SKILLS.md format:
//
//	## <id> — <Name>
//	Summary: <one line>
//	Keywords: <comma separated>
func parseIndex(content string) ([]core.SkillEntry, error) {
	var entries []core.SkillEntry
	var current *core.SkillEntry
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "## "):
			id, name, ok := strings.Cut(line[3:], " — ")
			if !ok {
				continue
			}
			current = &core.SkillEntry{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name)}
		case strings.HasPrefix(line, "Summary:") && current != nil:
			current.Summary = strings.TrimSpace(strings.TrimPrefix(line, "Summary:"))
		case strings.HasPrefix(line, "Keywords:") && current != nil:
			for _, kw := range strings.Split(strings.TrimPrefix(line, "Keywords:"), ",") {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw != "" {
					current.Keywords = append(current.Keywords, kw)
				}
			}
			entries = append(entries, *current)
			current = nil
		}
	}
	if len(entries) == 0 {
		return nil, &core.ValidationError{Reason: "skills index contains no entries"}
	}
	return entries, nil
}

// Entries implements core.SkillsIndex.
func (ix *Index) Entries() []core.SkillEntry {
	return append([]core.SkillEntry(nil), ix.entries...)
}

// Match implements core.SkillsIndex. Every registered entry appears in the
// report; entries with at least one keyword hit are ranked by score (name
// matches count double) and the top MaxLoadedSkills get their bodies loaded.
func (ix *Index) Match(ctx context.Context, message string) ([]core.SkillMatch, string, error) {
	lower := strings.ToLower(message)

	matches := make([]core.SkillMatch, len(ix.entries))
	for i, entry := range ix.entries {
		score := 0
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if strings.Contains(lower, strings.ToLower(entry.Name)) {
			score += 2
		}
		matches[i] = core.SkillMatch{SkillID: entry.ID, Name: entry.Name, Score: score}
	}

	// Rank candidates without disturbing the report's registry order.
	ranked := make([]*core.SkillMatch, 0, len(matches))
	for i := range matches {
		if matches[i].Score >= 1 {
			ranked = append(ranked, &matches[i])
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > ix.cfg.MaxLoadedSkills {
		ranked = ranked[:ix.cfg.MaxLoadedSkills]
	}

	var b strings.Builder
	for _, m := range ranked {
		body, err := ix.loadBody(m.SkillID)
		if err != nil {
			ix.logger.Warn("Failed to load skill body", "skill_id", m.SkillID, "error", err)
			continue
		}
		m.Loaded = true
		if b.Len() == 0 {
			b.WriteString("<expanded_skills>\n")
		}
		fmt.Fprintf(&b, "  --- %s ---\n  %s\n", m.Name, strings.TrimSpace(body))
	}
	if b.Len() > 0 {
		b.WriteString("</expanded_skills>")
	}
	return matches, b.String(), nil
}

// loadBody reads a skill body through the cache: at most one filesystem read
// per skill per process.
func (ix *Index) loadBody(id string) (string, error) {
	if v, ok := ix.cache.Get(id); ok {
		return v.(string), nil
	}
	data, err := fs.ReadFile(ix.fsys, id+".md")
	if err != nil {
		return "", fmt.Errorf("read skill body: %w", err)
	}
	body := string(data)
	ix.cache.Set(id, body, int64(len(body)))
	ix.cache.Wait()
	return body, nil
}

// IndexContext implements core.SkillsIndex. The rendered list stays in every
// prompt so the model knows which skills exist before any body is loaded.
func (ix *Index) IndexContext() string {
	var b strings.Builder
	b.WriteString("<available_skills>\n")
	for _, e := range ix.entries {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", e.ID, e.Name, e.Summary)
	}
	b.WriteString("</available_skills>")
	return b.String()
}
