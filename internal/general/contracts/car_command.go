package contracts

// CarRideRequest asks a car to accept a ride start.
type CarRideRequest struct {
	RideID         string `json:"ride_id"`
	CarID          string `json:"car_id"`
	UserID         string `json:"user_id"`
	CorrelationKey string `json:"correlation_key"`
	Envelope
}

// CarLockRequest asks a car to lock or unlock its doors during a ride.
type CarLockRequest struct {
	LockRequestID  string `json:"lock_request_id"`
	RideID         string `json:"ride_id"`
	CarID          string `json:"car_id"`
	Lock           bool   `json:"lock"`
	CorrelationKey string `json:"correlation_key"`
	Envelope
}

// CarAcknowledgement is a car's reply to a command.
type CarAcknowledgement struct {
	CorrelationKey string `json:"correlation_key"`
	CarID          string `json:"car_id"`
	Confirms       bool   `json:"confirms"`
	Envelope
}
