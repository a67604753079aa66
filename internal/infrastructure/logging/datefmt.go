package logging

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lestrrat-go/strftime"
)

// DefaultDatefmt is the timestamp format used when none is configured.
const DefaultDatefmt = "%Y-%m-%d %H:%M:%S"

// datefmtSpecs extends the standard strftime set with %f, the six-digit
// microsecond field accepted by Python-style datefmt settings.
var datefmtSpecs = []strftime.Option{
	strftime.WithSpecification('f', strftime.AppendFunc(appendMicroseconds)),
}

// CompileDatefmt compiles a strftime-style datefmt. Text outside
// directives is copied literally, so "run1 %H:%M" keeps its "run1".
// An unknown directive fails with ErrInvalidDatefmt.
func CompileDatefmt(datefmt string) (*strftime.Strftime, error) {
	if datefmt == "" {
		datefmt = DefaultDatefmt
	}
	stamp, err := strftime.New(datefmt, datefmtSpecs...)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidDatefmt, datefmt, err)
	}
	return stamp, nil
}

func appendMicroseconds(b []byte, t time.Time) []byte {
	us := t.Nanosecond() / int(time.Microsecond)
	s := strconv.Itoa(us)
	for i := len(s); i < 6; i++ {
		b = append(b, '0')
	}
	return append(b, s...)
}
