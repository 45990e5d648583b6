package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"labrelay/internal/transport"
)

// overload is the magnitude instruments report for an over-range reading
const overload = 9.9e37

// ParseFloat reads the first numeric field of a reply such as "+1.234E+00" or "1.2,3.4"
func ParseFloat(reply string) (float64, error) {
	s := strings.TrimSpace(reply)
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strconv.ParseFloat(s, 64)
}

// QueryFloat returns NaN when the query fails, the reply is not a number,
// or the instrument reports overload.
func QueryFloat(conn transport.Conn, cmd string) float64 {
	reply, err := conn.Query(cmd)
	if err != nil {
		return math.NaN()
	}
	v, err := ParseFloat(reply)
	if err != nil || math.Abs(v) >= overload {
		return math.NaN()
	}
	return v
}

func queryInt(conn transport.Conn, cmd string) (int, error) {
	reply, err := conn.Query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := ParseFloat(reply)
	if err != nil {
		return 0, fmt.Errorf("parse %q reply %q: %w", cmd, reply, err)
	}
	return int(v), nil
}

func queryBool(conn transport.Conn, cmd string) (bool, error) {
	reply, err := conn.Query(cmd)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "1", "ON", "+1":
		return true, nil
	case "0", "OFF", "+0":
		return false, nil
	}
	return false, fmt.Errorf("parse %q reply %q: not a boolean", cmd, reply)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
