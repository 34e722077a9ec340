// Package l10n holds every user-facing string the session core can surface.
package l10n

import "fmt"

// Key names one catalog entry.
type Key string

const (
	ErrCredentialsMissing Key = "credentials_missing"
	ErrChannelCreate      Key = "channel_create"
	ErrConnectTimeout     Key = "connect_timeout"
	ErrConnectionLost     Key = "connection_lost"
	ErrConnectFailed      Key = "connect_failed"
	ErrGeneric            Key = "generic"
	ErrNotConnected       Key = "not_connected"
	ErrNoResponse         Key = "no_response"
	ErrSendFailed         Key = "send_failed"
	ErrLoginConnect       Key = "login_connect_timeout"
	ErrResponseTimeout    Key = "response_timeout"
	ErrAuthFailed         Key = "auth_failed"
	ErrLogoutFailed       Key = "logout_failed"
	ErrRatingFailed       Key = "rating_failed"
	ErrStorage            Key = "storage_unavailable"

	NoticeSupportRequested Key = "notice_support_requested"
	NoticeSupportDisabled  Key = "notice_support_disabled"
	NoticeBackToAI         Key = "notice_back_to_ai"
	NoticeSupportAccepted  Key = "notice_support_accepted"
	NoticeSupportResolved  Key = "notice_support_resolved"
	NoticeWelcomeNew       Key = "notice_welcome_new"
	NoticeWelcomeBack      Key = "notice_welcome_back"
)

// Default is the locale the original deployment ships with.
const Default = "fa"

var catalogs = map[string]map[Key]string{
	"fa": {
		ErrCredentialsMissing: "لطفاً شماره موبایل و رمز عبور را وارد کنید.",
		ErrChannelCreate:      "خطا در ایجاد اتصال به سرور. لطفاً صفحه را بارگذاری مجدد کنید.",
		ErrConnectTimeout:     "زمان اتصال به سرور به پایان رسید. لطفاً صفحه را بارگذاری مجدد کنید.",
		ErrConnectionLost:     "اتصال به سرور قطع شد. لطفاً صفحه را رفرش کنید.",
		ErrConnectFailed:      "خطا در اتصال به سرور. لطفاً اتصال اینترنت خود را بررسی کنید.",
		ErrGeneric:            "خطایی رخ داد. لطفاً دوباره تلاش کنید.",
		ErrNotConnected:       "اتصال به سرور برقرار نیست. لطفاً صفحه را رفرش کنید.",
		ErrNoResponse:         "پاسخی از سرور دریافت نشد. لطفاً دوباره تلاش کنید.",
		ErrSendFailed:         "خطا در ارسال پیام. لطفاً دوباره تلاش کنید.",
		ErrLoginConnect:       "زمان اتصال به سرور به پایان رسید. لطفاً دوباره تلاش کنید.",
		ErrResponseTimeout:    "زمان پاسخ از سرور به پایان رسید. لطفاً دوباره تلاش کنید.",
		ErrAuthFailed:         "خطا در احراز هویت. لطفاً دوباره تلاش کنید.",
		ErrLogoutFailed:       "خطا در خروج از حساب کاربری. لطفاً دوباره تلاش کنید.",
		ErrRatingFailed:       "خطا در ثبت امتیاز: %s",
		ErrStorage:            "ذخیره‌سازی محلی در دسترس نیست؛ نشست فقط تا بسته شدن برنامه حفظ می‌شود.",

		NoticeSupportRequested: "درخواست شما برای صحبت با پشتیبان انسانی ثبت شد، لطفا منتظر بمانید...",
		NoticeSupportDisabled:  "حالت پشتیبانی انسانی غیرفعال شد.",
		NoticeBackToAI:         "شما به حالت گفتگو با هوش مصنوعی بازگشتید.",
		NoticeSupportAccepted:  "درخواست پشتیبانی انسانی شما پذیرفته شد. یکی از پشتیبان‌های ما به زودی به شما پاسخ خواهد داد.",
		NoticeSupportResolved:  "گفتگوی شما با پشتیبان به پایان رسید. برای بازگشت به حالت گفتگو با هوش مصنوعی، دکمه «بازگشت به چت با هوش مصنوعی» را بزنید.",
		NoticeWelcomeNew:       "خوش آمدید! حساب کاربری شما با موفقیت ایجاد شد.",
		NoticeWelcomeBack:      "خوش آمدید! شما با موفقیت وارد شدید.",
	},
	"en": {
		ErrCredentialsMissing: "Please enter your phone number and password.",
		ErrChannelCreate:      "Could not create a connection to the server. Please reload.",
		ErrConnectTimeout:     "Connecting to the server timed out. Please reload.",
		ErrConnectionLost:     "The connection to the server was lost. Please refresh.",
		ErrConnectFailed:      "Could not connect to the server. Please check your internet connection.",
		ErrGeneric:            "Something went wrong. Please try again.",
		ErrNotConnected:       "Not connected to the server. Please refresh.",
		ErrNoResponse:         "No response from the server. Please try again.",
		ErrSendFailed:         "Sending the message failed. Please try again.",
		ErrLoginConnect:       "Connecting to the server timed out. Please try again.",
		ErrResponseTimeout:    "The server did not answer in time. Please try again.",
		ErrAuthFailed:         "Authentication failed. Please try again.",
		ErrLogoutFailed:       "Logging out failed. Please try again.",
		ErrRatingFailed:       "Rating failed: %s",
		ErrStorage:            "Local storage is unavailable; the session will only last until the program exits.",

		NoticeSupportRequested: "Your request to talk to a human agent was registered, please wait...",
		NoticeSupportDisabled:  "Human support mode was turned off.",
		NoticeBackToAI:         "You are back to chatting with the AI assistant.",
		NoticeSupportAccepted:  "Your human support request was accepted. An agent will answer shortly.",
		NoticeSupportResolved:  "Your conversation with the agent has ended. Use \"back to AI chat\" to return to the assistant.",
		NoticeWelcomeNew:       "Welcome! Your account was created.",
		NoticeWelcomeBack:      "Welcome back! You are logged in.",
	},
}

// Catalog resolves keys for one locale, falling back to the default locale.
type Catalog struct {
	locale string
}

func New(locale string) Catalog {
	if _, ok := catalogs[locale]; !ok {
		locale = Default
	}
	return Catalog{locale: locale}
}

func (c Catalog) Locale() string { return c.locale }

// T returns the message for k, formatted with args when the entry has verbs.
func (c Catalog) T(k Key, args ...any) string {
	msg, ok := catalogs[c.locale][k]
	if !ok {
		msg, ok = catalogs[Default][k]
	}
	if !ok {
		return string(k)
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// Supported reports whether a locale has its own catalog.
func Supported(locale string) bool {
	_, ok := catalogs[locale]
	return ok
}
