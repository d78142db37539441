package dto

// DeliveryReport counts the outcome of one broadcast. Failures never fail the broadcast itself.
type DeliveryReport struct {
	Recipients int `json:"recipients"`
	Devices    int `json:"devices"`
	Delivered  int `json:"delivered"`
	Failed     int `json:"failed"`
}

// InvitationRequest invites users to a group or meeting.
type InvitationRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,dive,required"`
}

// RegisterDeviceRequest stores a push registration for the caller.
type RegisterDeviceRequest struct {
	RegistrationID string `json:"registrationId" validate:"required,max=512"`
	Platform       string `json:"platform" validate:"omitempty,oneof=android ios web"`
}

// NotificationQuery filters the caller's notification list.
type NotificationQuery struct {
	Limit int `form:"limit"`
}
