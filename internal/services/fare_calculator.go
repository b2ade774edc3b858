package services

// All amounts are whole currency units.

// ComputeFare returns farePerSeat × seatCount
func ComputeFare(farePerSeat int64, seatCount int) int64 {
	return farePerSeat * int64(seatCount)
}

// ComputeCommission returns totalAmount × ratePercent / 100 rounded half-up
func ComputeCommission(totalAmount, ratePercent int64) int64 {
	return percentOf(totalAmount, ratePercent)
}

// ComputeRefund returns what a cancelled booking gives back. Pending bookings
// were never paid, so they refund nothing.
func ComputeRefund(totalAmount, feePercent int64, wasConfirmed bool) int64 {
	if !wasConfirmed {
		return 0
	}
	return totalAmount - percentOf(totalAmount, feePercent)
}

func percentOf(amount, percent int64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return (amount*percent + 50) / 100
}
