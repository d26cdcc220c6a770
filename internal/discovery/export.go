package discovery

import (
	"fmt"
	"strings"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

// ExportMarkdown renders a session as a standalone markdown document:
// choices, covered subprocesses, the Q&A transcript, the summary and the
// recommendation. Empty sections are left out.
func ExportMarkdown(s *domain.DiscoverySession) string {
	var b strings.Builder

	b.WriteString("# Business Blueprint Discovery\n\n")
	fmt.Fprintf(&b, "- Session: `%s`\n", s.ID)
	fmt.Fprintf(&b, "- Status: %s\n", s.State)
	fmt.Fprintf(&b, "- Updated: %s\n", s.UpdatedAt.UTC().Format("2006-01-02 15:04 MST"))

	if keys := s.Choices.Keys(); len(keys) > 0 {
		b.WriteString("\n## Client Profile\n\n")
		for _, k := range keys {
			if v := s.Choices[k]; v != "" {
				fmt.Fprintf(&b, "- **%s**: %s\n", k, v)
			}
		}
	}

	if len(s.Subprocesses) > 0 {
		b.WriteString("\n## Sub-processes\n\n")
		for i, name := range s.Subprocesses {
			mark := " "
			if i < s.Cursor {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, name)
		}
	}

	if exchanges := s.Transcript.Exchanges(); len(exchanges) > 0 {
		b.WriteString("\n## Discovery Q&A\n")
		for i, ex := range exchanges {
			fmt.Fprintf(&b, "\n### %d. %s\n\n%s\n", i+1, ex.Question, quote(ex.Answer))
			for _, f := range ex.Followups {
				fmt.Fprintf(&b, "\n- **%s**\n", f.Question)
				if strings.TrimSpace(f.Answer) != "" {
					fmt.Fprintf(&b, "  %s\n", f.Answer)
				}
			}
		}
	}

	if strings.TrimSpace(s.Understanding) != "" {
		fmt.Fprintf(&b, "\n## Process Understanding\n\n%s\n", strings.TrimSpace(s.Understanding))
	}
	if strings.TrimSpace(s.Recommendation) != "" {
		fmt.Fprintf(&b, "\n## Process Recommendation\n\n%s\n", strings.TrimSpace(s.Recommendation))
	}
	if len(s.Diagnostics) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, d := range s.Diagnostics {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	return b.String()
}

func quote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
