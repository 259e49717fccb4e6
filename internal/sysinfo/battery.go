package sysinfo

import (
	"context"
	"errors"
	"fmt"

	"github.com/distatus/battery"
)

// Battery returns every battery the OS reports. A machine without batteries
// yields an empty slice and no error. Batteries that fail individually are
// skipped; the facet fails only if none can be read.
func (HostSource) Battery(ctx context.Context) ([]BatteryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bats, err := battery.GetAll()
	var partial battery.Errors
	if err != nil && !errors.As(err, &partial) {
		return nil, fmt.Errorf("batteries: %w", err)
	}

	out := make([]BatteryInfo, 0, len(bats))
	for i, b := range bats {
		if b == nil || (i < len(partial) && partial[i] != nil) {
			continue
		}
		out = append(out, toBatteryInfo(i, b))
	}
	if len(out) == 0 && len(bats) > 0 {
		return nil, fmt.Errorf("batteries: %w", err)
	}
	return out, nil
}

func toBatteryInfo(i int, b *battery.Battery) BatteryInfo {
	bi := BatteryInfo{
		Index:       i,
		State:       b.State.String(),
		CurrentWh:   b.Current / 1000,
		FullWh:      b.Full / 1000,
		DesignWh:    b.Design / 1000,
		ChargeRateW: b.ChargeRate / 1000,
		Voltage:     b.Voltage,
	}
	if b.Full > 0 {
		bi.ChargePercent = b.Current / b.Full * 100
	}
	return bi
}
