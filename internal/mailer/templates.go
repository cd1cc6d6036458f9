package mailer

import (
	"bytes"
	"html/template"
	"strconv"
	"time"
)

const (
	TemplateOTP   = "otp"
	TemplateReset = "password_reset"
)

var (
	otpHTML = template.Must(template.New(TemplateOTP).Parse(
		`<p>Your Attendly verification code is <strong>{{.OTP}}</strong>.</p><p>It expires in {{.Minutes}} minutes.</p>`))
	resetHTML = template.Must(template.New(TemplateReset).Parse(
		`<p>A password reset was requested for your Attendly account.</p>` +
			`<p><a href="{{.Link}}">Reset your password</a>. The link expires in {{.Minutes}} minutes.</p>` +
			`<p>If you did not request this, you can ignore this email.</p>`))
)

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

func minutes(ttl time.Duration) int {
	if m := int(ttl.Minutes()); m > 0 {
		return m
	}
	return 1
}

// OTPMail renders the email verification code mail.
func OTPMail(to, otp string, ttl time.Duration) Mail {
	data := struct {
		OTP     string
		Minutes int
	}{otp, minutes(ttl)}
	return Mail{
		Template: TemplateOTP,
		To:       to,
		Subject:  "Your verification code",
		Text:     "Your Attendly verification code is " + otp + ". It expires in " + strconv.Itoa(data.Minutes) + " minutes.",
		HTML:     render(otpHTML, data),
	}
}

// ResetMail renders the password reset mail.
func ResetMail(to, link string, ttl time.Duration) Mail {
	data := struct {
		Link    string
		Minutes int
	}{link, minutes(ttl)}
	return Mail{
		Template: TemplateReset,
		To:       to,
		Subject:  "Reset your password",
		Text:     "Reset your Attendly password: " + link + " (expires in " + strconv.Itoa(data.Minutes) + " minutes)",
		HTML:     render(resetHTML, data),
	}
}
