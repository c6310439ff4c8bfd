package domain

import (
	"strings"
	"time"
)

// Period é a granularidade de uma janela de contagem.
// A ordem importa: Second < Minute < Hour < Day < Week.
type Period int

const (
	Second Period = iota
	Minute
	Hour
	Day
	Week
)

var periodNames = [...]string{"Second", "Minute", "Hour", "Day", "Week"}

var periodSpans = [...]time.Duration{
	time.Second,
	time.Minute,
	time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
}

// Periods retorna todos os períodos em ordem crescente de granularidade.
func Periods() []Period {
	return []Period{Second, Minute, Hour, Day, Week}
}

func (p Period) Valid() bool { return p >= Second && p <= Week }

// Span é a duração da janela do período.
func (p Period) Span() time.Duration {
	if !p.Valid() {
		return 0
	}
	return periodSpans[p]
}

func (p Period) String() string {
	if !p.Valid() {
		return "Period(" + formatInt64(int64(p)) + ")"
	}
	return periodNames[p]
}

// ParsePeriod aceita o nome (sem diferenciar maiúsculas) e abreviações comuns.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "second", "sec", "s":
		return Second, nil
	case "minute", "min", "m":
		return Minute, nil
	case "hour", "h":
		return Hour, nil
	case "day", "d":
		return Day, nil
	case "week", "w":
		return Week, nil
	}
	return 0, Error.New("unknown period %q", s)
}

func (p Period) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, Error.New("invalid period %d", int(p))
	}
	return []byte(strings.ToLower(p.String())), nil
}

func (p *Period) UnmarshalText(text []byte) error {
	v, err := ParsePeriod(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
