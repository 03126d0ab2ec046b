package tasks

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

var isrcPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{3}[0-9]{7}$`)

// ParseQueries reads one lookup per line. Line numbers are kept on each [Job] for reporting.
func ParseQueries(r io.Reader) ([]Job, error) {
	var jobs []Job
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		q, err := ParseQuery(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		jobs = append(jobs, Job{Line: n, Query: q})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	return jobs, nil
}

// ParseQuery parses a single lookup line.
func ParseQuery(line string) (models.Query, error) {
	line = strings.TrimSpace(line)

	if artist, title, ok := strings.Cut(line, " - "); ok {
		q := models.Query{Artist: strings.TrimSpace(artist), Title: strings.TrimSpace(title)}
		return q, q.Validate()
	}

	if isrc := strings.ToUpper(line); isrcPattern.MatchString(isrc) {
		return models.Query{ISRC: isrc}, nil
	}

	if !strings.ContainsAny(line, " \t") {
		if id, err := models.ParseIdentifier(line); err == nil {
			if id.Service == "isrc" {
				isrc := strings.ToUpper(id.ID)
				if !isrcPattern.MatchString(isrc) {
					return models.Query{}, fmt.Errorf("%w: %q is not an ISRC", shared.ErrInvalidInput, id.ID)
				}
				return models.Query{ISRC: isrc}, nil
			}
			return models.Query{}.WithID(id.Service, id.ID), nil
		}
	}

	return models.Query{}, fmt.Errorf("%w: %q is not an ISRC, service:id or \"artist - title\"", shared.ErrInvalidInput, line)
}
