package bus

import (
	"errors"
	"testing"
)

func TestAddress_Validate(t *testing.T) {
	tests := []struct {
		name    string
		addr    Address
		wantErr bool
	}{
		{"valid", NewAddress("com.victronenergy.system", "/Dc/Battery/Soc"), false},
		{"path normalised", NewAddress("com.victronenergy.system", "Dc/Battery/Soc"), false},
		{"empty service", Address{Path: "/Soc"}, true},
		{"service with slash", Address{Service: "com/victron", Path: "/Soc"}, true},
		{"empty path", Address{Service: "com.victronenergy.system"}, true},
		{"root path", Address{Service: "com.victronenergy.system", Path: "/"}, true},
		{"wildcard path", Address{Service: "com.victronenergy.system", Path: "/Dc/#"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.addr.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("Validate() error = %v, want ErrInvalidAddress", err)
			}
		})
	}
}

func TestAddress_String(t *testing.T) {
	a := NewAddress("com.victronenergy.system", "//Dc/Battery/Soc")
	if got := a.String(); got != "com.victronenergy.system/Dc/Battery/Soc" {
		t.Errorf("String() = %q", got)
	}
}

func TestServiceCategory(t *testing.T) {
	tests := map[string]string{
		"com.victronenergy.battery.ttyUSB0":   "battery",
		"com.victronenergy.system":            "system",
		"com.victronenergy.switch.virtual_a1": "switch",
		"org.example.other":                   "",
	}
	for service, want := range tests {
		if got := ServiceCategory(service); got != want {
			t.Errorf("ServiceCategory(%q) = %q, want %q", service, got, want)
		}
	}
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    any
		wantErr bool
	}{
		{"number", `{"value":12.5}`, 12.5, false},
		{"string", `{"value":"On"}`, "On", false},
		{"null", `{"value":null}`, nil, false},
		{"empty", ``, nil, false},
		{"whitespace", "  ", nil, false},
		{"invalid", `{"value":`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeValue([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DecodeValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodePresence(t *testing.T) {
	tests := map[string]bool{
		`{"connected":true}`:  true,
		`{"connected":false}`: false,
		``:                    false,
		`1`:                   true,
	}
	for payload, want := range tests {
		if got := DecodePresence([]byte(payload)); got != want {
			t.Errorf("DecodePresence(%q) = %v, want %v", payload, got, want)
		}
	}
}
