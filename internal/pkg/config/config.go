package config

type Config struct {
	AppName        string
	BrokerURL      string
	MqttUser       string
	MqttPassword   string
	PostgresURL    string
	RedisURL       string
	Port           string
	MockMode       bool
	OTPSecret      string
	EncryptionKey  string
	AllowedAPIKeys []string
	Payment        PaymentConfig
	Hardware       HardwareConfig
	S3Config       S3Config
	Version        string
}

type PaymentConfig struct {
	URL    string
	APIKey string
}

// HardwareConfig carries the GPIO pin map. Defaults match the installed
// locker wiring, see DefaultHardwareConfig.
type HardwareConfig struct {
	LockPin            int
	DoorSensorPin      int
	ScaleDataPin       string
	ScaleClockPin      string
	ScaleReferenceUnit float64
	KeypadRowPins      []int
	KeypadColPins      []int
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	URL             string
	Bucket          string
	BackupEnabled   bool
}

func DefaultHardwareConfig() HardwareConfig {
	return HardwareConfig{
		LockPin:            2,
		DoorSensorPin:      16,
		ScaleDataPin:       "GPIO5",
		ScaleClockPin:      "GPIO6",
		ScaleReferenceUnit: -21263,
		KeypadRowPins:      []int{17, 27, 22, 10},
		KeypadColPins:      []int{9, 11, 13, 19},
	}
}
