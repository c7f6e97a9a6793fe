package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/llm"
)

type salesArgs struct {
	Month string `json:"month" jsonschema_description:"Nombre del mes (enero, febrero...) o número del mes (1-12). Puede incluir el año, por ejemplo 'enero 2024'. Sin año se usa el año actual."`
}

var monthNames = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"setiembre": time.September, "octubre": time.October, "noviembre": time.November,
	"diciembre": time.December,
}

var spanishMonths = [...]string{"", "Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre"}

var spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// SalesSimulator produces simulated daily sales for a month.
type SalesSimulator struct {
	mu   sync.Mutex
	rand *rand.Rand
	now  func() time.Time
}

func NewSalesSimulator() *SalesSimulator {
	return &SalesSimulator{rand: rand.New(rand.NewSource(time.Now().UnixNano())), now: time.Now}
}

func (s *SalesSimulator) Tool() llm.Tool {
	return llm.Tool{
		Name: "get_monthly_sales",
		Description: "Simula las ventas del mes solicitado con ventas diarias y estadísticas: total, promedio, " +
			"mejor día, peor día y resumen semanal. Ejemplo: 'enero', 'febrero 2024', '12'.",
		Schema: SchemaFor(&salesArgs{}),
	}
}

func (s *SalesSimulator) Handle(ctx context.Context, args map[string]any) (string, error) {
	var in salesArgs
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	month, year, err := parseMonthAndYear(in.Month, s.now().Year())
	if err != nil {
		return "", err
	}
	return s.report(month, year), nil
}

type dailySale struct {
	date  time.Time
	sales float64
}

func (s *SalesSimulator) report(month time.Month, year int) string {
	days := s.simulate(month, year)

	total := 0.0
	for _, d := range days {
		total += d.sales
	}
	avg := total / float64(len(days))
	best, worst := days[0], days[0]
	above := 0
	for _, d := range days {
		if d.sales > best.sales {
			best = d
		}
		if d.sales < worst.sales {
			worst = d
		}
		if d.sales > avg {
			above++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ventas simuladas de %s %d\n", spanishMonths[month], year)
	fmt.Fprintf(&b, "Total de ventas: %s\n", money(total))
	fmt.Fprintf(&b, "Promedio diario: %s\n", money(avg))
	fmt.Fprintf(&b, "Días del mes: %d\n", len(days))
	fmt.Fprintf(&b, "Días por encima del promedio: %d\n", above)
	fmt.Fprintf(&b, "Mejor día: %s (%s) con %s\n", best.date.Format("02/01/2006"), spanishWeekdays[best.date.Weekday()], money(best.sales))
	fmt.Fprintf(&b, "Peor día: %s (%s) con %s\n", worst.date.Format("02/01/2006"), spanishWeekdays[worst.date.Weekday()], money(worst.sales))
	b.WriteString("Resumen semanal:\n")

	weeks := map[int][]float64{}
	for _, d := range days {
		_, w := d.date.ISOWeek()
		weeks[w] = append(weeks[w], d.sales)
	}
	order := make([]int, 0, len(weeks))
	for w := range weeks {
		order = append(order, w)
	}
	// ISO weeks of early January can belong to the previous year.
	sort.Slice(order, func(i, j int) bool {
		return firstDay(days, order[i]).Before(firstDay(days, order[j]))
	})
	for _, w := range order {
		sum := 0.0
		for _, v := range weeks[w] {
			sum += v
		}
		fmt.Fprintf(&b, "  Semana %d: total %s, promedio %s\n", w, money(sum), money(sum/float64(len(weeks[w]))))
	}
	return b.String()
}

func firstDay(days []dailySale, week int) time.Time {
	for _, d := range days {
		if _, w := d.date.ISOWeek(); w == week {
			return d.date
		}
	}
	return time.Time{}
}

// simulate draws one base level per month; weekends sell 50-70% of it,
// weekdays 80-120%, and one day in ten spikes 1.5x-2.5x.
func (s *SalesSimulator) simulate(month time.Month, year int) []dailySale {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	n := first.AddDate(0, 1, -1).Day()
	base := 1000 + s.rand.Float64()*2000
	out := make([]dailySale, 0, n)
	for day := 0; day < n; day++ {
		date := first.AddDate(0, 0, day)
		var mult float64
		switch date.Weekday() {
		case time.Saturday, time.Sunday:
			mult = 0.5 + s.rand.Float64()*0.2
		default:
			mult = 0.8 + s.rand.Float64()*0.4
		}
		if s.rand.Float64() < 0.1 {
			mult *= 1.5 + s.rand.Float64()
		}
		out = append(out, dailySale{date: date, sales: math.Round(base*mult*100) / 100})
	}
	return out
}

func parseMonthAndYear(input string, currentYear int) (time.Month, int, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(input)))
	if len(fields) == 0 {
		return 0, 0, errors.New("mes vacío")
	}
	year := currentYear
	if len(fields) > 1 {
		if y, err := strconv.Atoi(fields[1]); err == nil && y >= 2000 && y <= 2100 {
			year = y
		}
	}
	name := fields[0]
	if n, err := strconv.Atoi(name); err == nil {
		if n < 1 || n > 12 {
			return 0, 0, fmt.Errorf("el mes debe estar entre 1 y 12, recibido %d", n)
		}
		return time.Month(n), year, nil
	}
	if m, ok := monthNames[name]; ok {
		return m, year, nil
	}
	return 0, 0, fmt.Errorf("no se pudo reconocer el mes: %s", name)
}

// money formats an amount as $1,234.56.
func money(v float64) string {
	cents := int64(math.Round(v * 100))
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	fmt.Fprintf(&b, ".%02d", cents%100)
	return b.String()
}
