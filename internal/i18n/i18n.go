// Package i18n holds the user-facing message catalog.
package i18n

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supported = []language.Tag{
	language.English,
	language.Russian,
}

var matcher = language.NewMatcher(supported)

var catalog = map[string][2]string{
	"error.unauthorized":        {"Please sign in to continue.", "Войдите, чтобы продолжить."},
	"error.forbidden":           {"You do not have access to this item.", "У вас нет доступа к этому объекту."},
	"error.not_found":           {"Not found.", "Не найдено."},
	"error.invalid_request":     {"The request is invalid.", "Некорректный запрос."},
	"error.too_frequent":        {"You're going too fast. Please wait a few seconds.", "Слишком часто. Подождите несколько секунд."},
	"error.already_generating":  {"An image is already being generated for you. Please wait for it to finish.", "Изображение уже генерируется. Дождитесь завершения."},
	"error.insufficient_funds":  {"Not enough coins. Top up your balance to continue.", "Недостаточно монет. Пополните баланс."},
	"error.provider_error":      {"The image service could not complete the request.", "Сервис генерации не смог выполнить запрос."},
	"error.provider_timeout":    {"The image service took too long to respond. Your coins were refunded.", "Сервис генерации не ответил вовремя. Монеты возвращены."},
	"error.storage_error":       {"The image could not be saved. Your coins were refunded.", "Не удалось сохранить изображение. Монеты возвращены."},
	"error.internal_error":      {"Something went wrong. Please try again.", "Что-то пошло не так. Попробуйте ещё раз."},
	"error.rate_limited":        {"Too many requests. Please try again later.", "Слишком много запросов. Попробуйте позже."},
	"error.prompt_required":     {"Please enter a prompt.", "Введите описание."},
	"error.prompt_too_long":     {"The prompt is too long.", "Описание слишком длинное."},
	"error.unknown_model":       {"Unknown model.", "Неизвестная модель."},
	"error.invalid_aspect":      {"Unsupported aspect ratio.", "Неподдерживаемое соотношение сторон."},
	"error.reference_too_large": {"The reference image is too large (max %d MB).", "Референс слишком большой (макс. %d МБ)."},
	"error.reference_type":      {"The reference image must be JPEG, PNG or WebP.", "Референс должен быть в формате JPEG, PNG или WebP."},
	"error.reference_invalid":   {"The reference image could not be read.", "Не удалось прочитать референс."},
	"error.invalid_amount":      {"Invalid amount.", "Некорректная сумма."},
	"error.generation_pending":  {"This image is still being generated.", "Изображение ещё генерируется."},
	"email.topup_subject":       {"%d coins added to your balance", "На баланс зачислено %d монет"},
	"email.topup_body":          {"Thanks for your purchase! %d coins were added. Your balance is now %d coins.", "Спасибо за покупку! Зачислено монет: %d. Текущий баланс: %d."},
	"email.signoff":             {"Best,\nThe %s Team", "С уважением,\nКоманда %s"},
}

func init() {
	for key, msgs := range catalog {
		_ = message.SetString(language.English, key, msgs[0])
		_ = message.SetString(language.Russian, key, msgs[1])
	}
}

// Match picks the best supported language for an Accept-Language header or
// stored locale, falling back to English.
func Match(preferences ...string) language.Tag {
	tag, _ := language.MatchStrings(matcher, preferences...)
	base, _ := tag.Base()
	for _, s := range supported {
		sb, _ := s.Base()
		if sb == base {
			return s
		}
	}
	return language.English
}

// T formats a catalog message in the given language.
func T(tag language.Tag, key string, args ...any) string {
	return message.NewPrinter(tag).Sprintf(key, args...)
}

// Has reports whether key is in the catalog.
func Has(key string) bool {
	_, ok := catalog[key]
	return ok
}

// Title capitalizes a catalog tag for display in the given language.
func Title(tag language.Tag, s string) string {
	return cases.Title(tag).String(s)
}
