package source

import (
	"bufio"
	"bytes"
	"io"
	"iter"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/logger"
)

const maxLineSize = 16 * 1024 * 1024

// Lines reads one JSON record per line. Records that do not decode are
// skipped and counted; a read error ends the sequence and is reported by Err.
type Lines struct {
	r       io.Reader
	decoder Decoder
	logger  logger.Logger

	read    int
	skipped int
	err     error
}

func NewLines(r io.Reader, decoder Decoder, log logger.Logger) *Lines {
	return &Lines{r: r, decoder: decoder, logger: log.Named("source")}
}

// Documents yields the decoded records. It can be ranged over only once.
func (l *Lines) Documents() iter.Seq[index.Document] {
	return func(yield func(index.Document) bool) {
		scanner := bufio.NewScanner(l.r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		line := 0
		for scanner.Scan() {
			line++
			data := bytes.TrimSpace(scanner.Bytes())
			if len(data) == 0 {
				continue
			}
			l.read++

			doc, err := l.decoder.Decode(data, "")
			if err != nil {
				l.skipped++
				l.logger.Warn("Skipping record", "line", line, "error", err)
				continue
			}
			if !yield(doc) {
				return
			}
		}
		l.err = scanner.Err()
	}
}

// Read is the number of non-empty records read so far.
func (l *Lines) Read() int { return l.read }

// Skipped is the number of records that could not be decoded.
func (l *Lines) Skipped() int { return l.skipped }

func (l *Lines) Err() error { return l.err }
