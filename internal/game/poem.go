package game

import (
	"strings"
)

// Poem is the append-only log of contributions for one session. It is
// owned by the Session and only ever mutated under the session lock.
type Poem struct {
	entries []Contribution
}

func (p *Poem) append(c Contribution) {
	p.entries = append(p.entries, c)
}

// Len is the number of contributions.
func (p *Poem) Len() int {
	return len(p.entries)
}

// WordCount is the total number of words across all contributions.
func (p *Poem) WordCount() int {
	n := 0
	for _, c := range p.entries {
		n += len(c.Words)
	}
	return n
}

// Contributions returns a copy of the log.
func (p *Poem) Contributions() []Contribution {
	out := make([]Contribution, len(p.entries))
	copy(out, p.entries)
	return out
}

// Window returns the trailing k words of the whole poem, fewer if the poem
// is shorter, empty if the poem is empty. k counts words, not
// contributions, so the window may straddle contribution boundaries.
// Authorship is never exposed here; turn eligibility is the Session's job.
func (p *Poem) Window(k int) []string {
	if k <= 0 {
		return []string{}
	}
	all := p.words()
	if len(all) <= k {
		return all
	}
	return all[len(all)-k:]
}

func (p *Poem) words() []string {
	out := make([]string, 0, p.WordCount())
	for _, c := range p.entries {
		out = append(out, c.Words...)
	}
	return out
}

// Render lays the poem out as verse, two contributions per line joined
// with " / ".
func (p *Poem) Render() string {
	var lines []string
	for i := 0; i < len(p.entries); i += 2 {
		first := strings.Join(p.entries[i].Words, " ")
		if i+1 < len(p.entries) {
			lines = append(lines, first+" / "+strings.Join(p.entries[i+1].Words, " "))
		} else {
			lines = append(lines, first)
		}
	}
	return strings.Join(lines, "\n")
}

// Authors returns the distinct contributors in first-appearance order.
func (p *Poem) Authors() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range p.entries {
		if !seen[c.Author] {
			seen[c.Author] = true
			out = append(out, c.Author)
		}
	}
	return out
}
