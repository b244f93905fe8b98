package rf

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/door"
)

// Handler receives accepted codes.
type Handler interface {
	HandleRFCode(code uint32) (door.Result, error)
}

// ParseCode extracts a code from one receiver output line. Decimal and
// 0x-prefixed hex are accepted; sniffer lines such as
// "Received 5393 / 24bit Protocol: 1" yield the first number.
func ParseCode(line string) (uint32, error) {
	for _, f := range strings.Fields(line) {
		v, err := strconv.ParseUint(strings.TrimSuffix(f, ","), 0, 32)
		if err == nil {
			return uint32(v), nil
		}
	}
	return 0, pkgerrors.Errorf("no code in %q", line)
}

// Reader turns receiver output into controller calls.
type Reader struct {
	src     io.ReadCloser
	filter  *Filter
	handler Handler
}

func NewReader(src io.ReadCloser, filter *Filter, handler Handler) *Reader {
	return &Reader{src: src, filter: filter, handler: handler}
}

// Open opens the receiver device, usually a serial tty or a fifo.
func Open(path string, filter *Filter, handler Handler) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open rf receiver %s", path)
	}
	return NewReader(f, filter, handler), nil
}

// Run reads until the source ends or ctx is cancelled. Cancelling closes the
// source to unblock the pending read.
func (r *Reader) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.src.Close()
	}()

	sc := bufio.NewScanner(r.src)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		code, err := ParseCode(line)
		if err != nil {
			logrus.WithField("line", line).Trace("ignoring rf receiver line")
			continue
		}
		if !r.filter.Accept(code) {
			logrus.WithField("code", code).Trace("rf repeat suppressed")
			continue
		}
		res, err := r.handler.HandleRFCode(code)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"code":   code,
			"result": res,
		}).Debug("rf code handled")
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return pkgerrors.Wrap(err, "failed to read rf receiver")
	}
	return nil
}
