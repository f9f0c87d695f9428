package events

const (
	TopicPaymentRequested = "checkout.payment.requested"
	TopicPaymentSettled   = "checkout.payment.settled"
	TopicPaymentInvalid   = "checkout.payment.invalid"
)

// Partition key = reference, supaya semua event 1 checkout tetap urut.
func PartitionKey(reference string) []byte { return []byte(reference) }
