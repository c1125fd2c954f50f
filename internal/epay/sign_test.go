package epay

import "testing"

func TestSignKnownVectors(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		key    string
		want   string
	}{
		{
			name:   "two params",
			params: map[string]string{"a": "1", "b": "2"},
			key:    "secret",
			want:   "8d9f51949e440aa629fd1a035708473a",
		},
		{
			name:   "sign and sign_type excluded",
			params: map[string]string{"a": "1", "b": "2", "sign": "junk", "sign_type": "MD5"},
			key:    "secret",
			want:   "8d9f51949e440aa629fd1a035708473a",
		},
		{
			name:   "empty values dropped",
			params: map[string]string{"a": "1", "b": "2", "empty": ""},
			key:    "secret",
			want:   "8d9f51949e440aa629fd1a035708473a",
		},
		{
			name: "full callback parameter set",
			params: map[string]string{
				"money":        "9.00",
				"name":         "Recharge",
				"out_trade_no": "COIN20240101120000ABCD",
				"pid":          "1000",
				"trade_no":     "2024010122001",
				"trade_status": "TRADE_SUCCESS",
				"type":         "alipay",
			},
			key:  "testkey",
			want: "2b08a3a72726fd65f7111b84f23bb0fc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sign(tt.params, tt.key)
			if got != tt.want {
				t.Errorf("Sign() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	params := map[string]string{
		"out_trade_no": "COIN20240101120000ABCD",
		"trade_no":     "2024010122001",
		"trade_status": "TRADE_SUCCESS",
		"money":        "9.00",
		"type":         "alipay",
	}
	key := "roundtripkey"

	sig := Sign(params, key)
	if !Verify(params, sig, key) {
		t.Fatal("Verify rejected a signature produced by Sign")
	}
}

func TestVerifyCaseInsensitive(t *testing.T) {
	params := map[string]string{"a": "1", "b": "2"}
	if !Verify(params, "8D9F51949E440AA629FD1A035708473A", "secret") {
		t.Error("Verify should accept uppercase hex signatures")
	}
}

func TestVerifyEmptySignature(t *testing.T) {
	params := map[string]string{"a": "1"}
	if Verify(params, "", "secret") {
		t.Error("Verify must fail immediately on an empty signature")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	params := map[string]string{
		"out_trade_no": "COIN20240101120000ABCD",
		"money":        "9.00",
		"trade_status": "TRADE_SUCCESS",
	}
	key := "tamperkey"
	sig := Sign(params, key)

	for k := range params {
		mutated := make(map[string]string, len(params))
		for k2, v2 := range params {
			mutated[k2] = v2
		}
		mutated[k] = mutated[k] + "x"

		if Verify(mutated, sig, key) {
			t.Errorf("Verify accepted a signature after mutating %q", k)
		}
	}

	if Verify(params, sig, "wrongkey") {
		t.Error("Verify accepted a signature computed with a different key")
	}
}
