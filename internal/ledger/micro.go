package ledger

/*
Файл micro.go реализует денежную арифметику ядра в микро-единицах USDC
(1 USDC = 1_000_000 micro). Все расчеты ведутся на целых числах:
float не используется нигде, промежуточные произведения проверяются
через 128-битный результат bits.Mul64.
*/

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// Scale — количество микро-единиц в одном USDC.
const Scale = 1_000_000

// bpsDenominator — знаменатель базисных пунктов (10000 bps = 100%).
const bpsDenominator = 10_000

// Micro — сумма в микро-единицах USDC. Валидация при парсинге гарантирует,
// что любая принятая сумма неотрицательна и укладывается в int64;
// произведение principal * (10000 + rate_bps) считается в 128 битах.
type Micro int64

// Bounds — допустимый диапазон суммы [Min, Max], задается конфигом.
type Bounds struct {
	Min Micro
	Max Micro
}

// ValidationError — отказ валидации суммы/длительности до любого изменения состояния.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// ErrOverflow возвращается при переполнении целочисленного расчета.
var ErrOverflow = &ValidationError{Field: "amount", Msg: "integer overflow in money arithmetic"}

// Parse разбирает десятичную строку ("12.50") в микро-единицы.
// Допускается до 6 знаков после точки, отрицательные значения запрещены.
func Parse(s string, b Bounds) (Micro, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: "amount", Msg: "empty value"}
	}
	if strings.HasPrefix(s, "-") {
		return 0, &ValidationError{Field: "amount", Msg: "negative amount"}
	}

	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" || !isDigits(whole) {
		return 0, &ValidationError{Field: "amount", Msg: "malformed decimal"}
	}
	if frac != "" && (!isDigits(frac) || len(frac) > 6) {
		return 0, &ValidationError{Field: "amount", Msg: "at most 6 fractional digits allowed"}
	}

	// Целая часть: не больше int64/Scale по определению
	var units int64
	for _, c := range whole {
		d := int64(c - '0')
		if units > (math.MaxInt64-d)/10 {
			return 0, ErrOverflow
		}
		units = units*10 + d
	}
	if units > math.MaxInt64/Scale {
		return 0, ErrOverflow
	}

	// Дробная часть добиваем нулями до 6 знаков
	micros := units * Scale
	if frac != "" {
		padded := frac + strings.Repeat("0", 6-len(frac))
		var f int64
		for _, c := range padded {
			f = f*10 + int64(c-'0')
		}
		if micros > math.MaxInt64-f {
			return 0, ErrOverflow
		}
		micros += f
	}

	m := Micro(micros)
	if err := b.Check(m); err != nil {
		return 0, err
	}
	return m, nil
}

// Check проверяет сумму на вхождение в сконфигурированный диапазон.
func (b Bounds) Check(m Micro) error {
	if m < 0 {
		return &ValidationError{Field: "amount", Msg: "negative amount"}
	}
	if m < b.Min {
		return &ValidationError{Field: "amount", Msg: fmt.Sprintf("below minimum %s", b.Min.Format())}
	}
	if b.Max > 0 && m > b.Max {
		return &ValidationError{Field: "amount", Msg: fmt.Sprintf("above maximum %s", b.Max.Format())}
	}
	return nil
}

// Format выводит сумму для отображения с двумя знаками после точки.
// Внутренняя точность (6 знаков) при этом не теряется — это только витрина.
func (m Micro) Format() string {
	neg := ""
	v := int64(m)
	if v < 0 {
		neg = "-"
		v = -v
	}
	cents := (v % Scale) / 10_000 // микро -> сотые
	return fmt.Sprintf("%s%d.%02d", neg, v/Scale, cents)
}

// Repay считает сумму к возврату: principal * (10000 + rateBps) / 10000.
// Деление целочисленное с округлением вниз. Произведение проверяется
// в 128-битном промежуточном значении.
func Repay(principal Micro, rateBps int64) (Micro, error) {
	if principal < 0 {
		return 0, &ValidationError{Field: "principal", Msg: "negative principal"}
	}
	if rateBps < 0 {
		return 0, &ValidationError{Field: "rate_bps", Msg: "negative rate"}
	}
	factor := uint64(bpsDenominator + rateBps)

	hi, lo := bits.Mul64(uint64(principal), factor)
	// Если старшее слово >= делителя, частное не влезает в 64 бита
	if hi >= bpsDenominator {
		return 0, ErrOverflow
	}
	quo, _ := bits.Div64(hi, lo, bpsDenominator)
	if quo > math.MaxInt64 {
		return 0, ErrOverflow
	}
	return Micro(quo), nil
}

// EqualWithin сравнивает суммы с допуском tol (по умолчанию ±1 микро) —
// сверка сумм, о которых отчитался внешний исполнитель платежа.
func EqualWithin(a, b, tol Micro) bool {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	return d <= int64(tol)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
