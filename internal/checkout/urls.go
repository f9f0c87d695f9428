package checkout

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/catalog"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// TransferRequest is a plain token transfer link a wallet can pay without
// talking to the API.
type TransferRequest struct {
	Recipient solana.PublicKey
	Amount    decimal.Decimal
	Token     solana.PublicKey
	Reference solana.PublicKey
	Label     string
	Message   string
}

// TransferURL encodes r as solana:<recipient>?amount=..&spl-token=..&reference=..
// Optional fields are left out when empty.
func TransferURL(r TransferRequest) string {
	var b strings.Builder
	b.WriteString("solana:")
	b.WriteString(r.Recipient.String())

	params := [][2]string{
		{"amount", r.Amount.String()},
		{"spl-token", r.Token.String()},
		{"reference", r.Reference.String()},
		{"label", r.Label},
		{"message", r.Message},
	}
	sep := "?"
	for _, p := range params {
		if p[1] == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
		sep = "&"
	}
	return b.String()
}

// TransactionLink is the https endpoint a wallet POSTs its account to.
func TransactionLink(baseURL string, cart catalog.Cart, reference solana.PublicKey) string {
	ids := make([]string, 0, len(cart))
	for id := range cart {
		if id == "reference" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	q := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		q = append(q, url.QueryEscape(id)+"="+url.QueryEscape(cart[id]))
	}
	q = append(q, "reference="+reference.String())
	return strings.TrimRight(baseURL, "/") + "/api/transaction?" + strings.Join(q, "&")
}

// TransactionRequestURL wraps link as solana:<link>. The link is escaped
// because it carries its own query.
func TransactionRequestURL(link string) string {
	return "solana:" + url.QueryEscape(link)
}
