package service

import (
	"fmt"

	"github.com/promptlab/promptlab/internal/i18n"
	"golang.org/x/text/language"
)

func topUpReceiptTemplate(locale language.Tag, coins, balance int64, appURL, appName string) (string, string) {
	subject := i18n.T(locale, "email.topup_subject", coins)
	body := fmt.Sprintf("%s\n\n%s\n\n%s",
		i18n.T(locale, "email.topup_body", coins, balance),
		appURL,
		i18n.T(locale, "email.signoff", appName),
	)

	return subject, body
}
