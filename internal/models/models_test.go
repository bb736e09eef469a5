package models

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestEvent_PriceForAndFull(t *testing.T) {
	e := &Event{Price: 1000, MemberDiscount: 5}
	require.Equal(t, int64(950), e.PriceFor(true))
	require.Equal(t, int64(1000), e.PriceFor(false))

	e.MemberDiscount = 150
	require.Equal(t, int64(0), e.PriceFor(true))

	require.False(t, e.Full())
	e.MaxAttendees = lo.ToPtr(2)
	e.CurrentAttendees = 2
	require.True(t, e.Full())
}

func TestOrder_ComputeTotal(t *testing.T) {
	o := &Order{Items: datatypes.NewJSONType([]OrderItem{
		{Name: "Tee", Quantity: 2, UnitPrice: 800},
		{Name: "Mug", Quantity: 1, UnitPrice: 450},
	})}
	require.Equal(t, int64(2050), o.ComputeTotal())
}

func TestPayment_MetaNeverNil(t *testing.T) {
	var p *Payment
	require.NotNil(t, p.Meta())
	require.Equal(t, "", p.CheckoutID())

	p = &Payment{Metadata: datatypes.NewJSONType(&PaymentMetadata{EventID: "E1"})}
	require.Equal(t, "E1", p.Meta().EventID)
}
