package auth

// Stable response copy for the auth endpoints.
const (
	MsgRegistered          = "Registration successful. Please check your email for verification"
	MsgLoggedIn            = "Logged in successfully"
	MsgLoggedOut           = "Logged out successfully"
	MsgEmailVerified       = "Email verified successfully"
	MsgTokenRefreshed      = "Token refreshed successfully"
	MsgPasswordChanged     = "Password has been changed successfully"
	MsgPasswordReset       = "Your password has been reset successfully"
	// MsgResetEmailSent is returned whether or not the email is registered;
	// the forgot-password endpoint must not reveal account existence.
	MsgResetEmailSent = "If an account exists with that email, we have sent password reset instructions"
)
