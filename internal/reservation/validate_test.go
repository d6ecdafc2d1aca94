package reservation

import (
	"errors"
	"strings"
	"testing"

	"barbershop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Input)
		field  string
	}{
		{"valid", func(*Input) {}, ""},
		{"walk-in", func(in *Input) { in.CustomerID = "" }, ""},
		{"bad staff id", func(in *Input) { in.StaffID = "iv an" }, "staffId"},
		{"empty service", func(in *Input) { in.ServiceID = "" }, "serviceId"},
		{"long customer id", func(in *Input) { in.CustomerID = strings.Repeat("a", 65) }, "customerId"},
		{"short name", func(in *Input) { in.CustomerName = " A " }, "customerName"},
		{"long name", func(in *Input) { in.CustomerName = strings.Repeat("я", 101) }, "customerName"},
		{"phone letters", func(in *Input) { in.CustomerPhone = "79990001122x" }, "customerPhone"},
		{"phone too long", func(in *Input) { in.CustomerPhone = "1234567890123456" }, "customerPhone"},
		{"missing date", func(in *Input) { in.Date = "" }, "date"},
		{"missing time", func(in *Input) { in.Time = " " }, "time"},
		{"bad date", func(in *Input) { in.Date = "21.10.2026" }, "date"},
		{"bad time", func(in *Input) { in.Time = "25:00" }, "time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.modify(&in)
			v, err := validate(in)
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, "2026-10-21T10:00", v.key.String())
				return
			}
			var re *Error
			require.True(t, errors.As(err, &re))
			assert.Equal(t, CodeValidation, re.Code)
			assert.Equal(t, tt.field, re.Field)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+7 (999) 000-11-22", "79990001122", true},
		{"8.999.000.11.22", "89990001122", true},
		{"0123456789", "0123456789", true},
		{"123456789", "", false},
		{"79+990001122", "", false},
		{"٧٩٩٩٠٠٠١١٢٢", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestValidatePatch(t *testing.T) {
	cancelled := model.StatusCancelled
	by := "someone"
	p, err := validatePatch(model.ReservationPatch{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, *p.Status)

	_, err = validatePatch(model.ReservationPatch{CancelledBy: &by})
	assert.Equal(t, CodeValidation, CodeOf(err))

	name := "  Ivan  Ivanov "
	p, err = validatePatch(model.ReservationPatch{CustomerName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ivan Ivanov", *p.CustomerName)
}
