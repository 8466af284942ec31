// Package reminder периодически напоминает клиентам о долге.
//
// Задача запускается по cron ежедневно в заданное время, но рассылает
// напоминания не чаще одного раза в IntervalDays дней. Сами сообщения
// уходят событиями DebtReminder через outbox, доставкой в Telegram
// занимается внешний потребитель.
package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Значения по умолчанию.
const (
	DefaultIntervalDays = 3
	DefaultTime         = "10:00"
	DefaultTimezone     = "Asia/Tashkent"
)

// Settings — настройки рассылки напоминаний.
type Settings struct {
	Enabled      bool
	IntervalDays int
	// Time — время запуска в формате HH:MM.
	Time     string
	Location *time.Location
}

// DefaultSettings возвращает выключенную рассылку с настройками по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		IntervalDays: DefaultIntervalDays,
		Time:         DefaultTime,
		Location:     time.UTC,
	}
}

// LoadLocation подставляет часовой пояс по имени; пустое имя даёт DefaultTimezone.
func (s Settings) LoadLocation(name string) (Settings, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return s, fmt.Errorf("load reminder timezone %q: %w", name, err)
	}
	s.Location = loc
	return s, nil
}

// CronSpec переводит Time в cron-выражение "M H * * *".
func (s Settings) CronSpec() (string, error) {
	hour, minute, err := parseClock(s.Time)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Validate проверяет интервал и время запуска.
func (s Settings) Validate() error {
	if s.IntervalDays < 1 {
		return fmt.Errorf("reminder interval must be at least one day, got %d", s.IntervalDays)
	}
	_, _, err := parseClock(s.Time)
	return err
}

func parseClock(raw string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, 0, fmt.Errorf("reminder time %q must be HH:MM", raw)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("reminder time %q has invalid hour", raw)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("reminder time %q has invalid minute", raw)
	}
	return hour, minute, nil
}

// FormatSum печатает сумму с пробелами между разрядами: 1250000 -> "1 250 000".
func FormatSum(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}

	var b strings.Builder
	b.WriteString(sign)
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > len(sign) {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Message возвращает текст напоминания для клиента.
func Message(totalDebt int64) string {
	return fmt.Sprintf("Hurmatli mijoz! Sizda %s so'm qarzdorlik mavjud. Iltimos, to'lovni amalga oshiring. MUZ BAZAR", FormatSum(totalDebt))
}
