package constants

// 队列常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskOtpExpire = "otp:expire"
)

// 人机校验提供方常量
const (
	CaptchaProviderNone  = "none"
	CaptchaProviderImage = "image"
)

// 人机校验场景常量
const (
	CaptchaSceneSendOtp = "send_otp"
)
