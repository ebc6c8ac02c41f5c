package address

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/util/key"
)

// Reference vectors computed with an independent implementation of the
// derivation.
const (
	testProgram = "Doo2arLUifZbfqGVS5Uh7nexAMmsMzaQH5zcwZhSoijz"
	testPoll    = "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"
	testVoter   = "8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR"
)

func TestAddress_New(t *testing.T) {
	addr, err := New(bytes.Repeat([]byte{1}, Size))
	require.NoError(t, err)
	require.Equal(t, testPoll, addr.String())

	_, err = New([]byte{1, 2, 3})
	require.EqualError(t, err, "invalid address length 3")
}

func TestAddress_Parse(t *testing.T) {
	addr, err := Parse(testVoter)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{2}, Size), addr.Bytes())

	_, err = Parse("0OIl")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode base58: ")

	_, err = Parse("2g")
	require.EqualError(t, err, "failed to parse '2g': invalid address length 1")

	require.Panics(t, func() { MustParse("2g") })
}

func TestAddress_IsZero(t *testing.T) {
	require.True(t, Zero.IsZero())
	require.False(t, MustParse(testPoll).IsZero())
	require.Equal(t, "11111111111111111111111111111111", Zero.String())
}

func TestAddress_Text(t *testing.T) {
	type wrapper struct {
		Addr Address `json:"addr"`
	}

	data, err := json.Marshal(wrapper{Addr: MustParse(testPoll)})
	require.NoError(t, err)
	require.Equal(t, `{"addr":"`+testPoll+`"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal(data, &w))
	require.Equal(t, MustParse(testPoll), w.Addr)

	require.Error(t, json.Unmarshal([]byte(`{"addr":"2g"}`), &w))
}

func TestAddress_Compare(t *testing.T) {
	a := MustParse(testPoll)
	b := MustParse(testVoter)

	require.Equal(t, -1, Compare(a, b))
	require.Equal(t, 1, Compare(b, a))
	require.Equal(t, 0, Compare(a, a))
}

func TestIsOnCurve(t *testing.T) {
	kp := key.NewKeyPair(suite)

	buf, err := kp.Public.MarshalBinary()
	require.NoError(t, err)
	require.True(t, IsOnCurve(buf))

	require.True(t, IsOnCurve(MustParse(testProgram).Bytes()))
	require.False(t, IsOnCurve([]byte{1, 2, 3}))
}

func TestFindProgramAddress_Candidate(t *testing.T) {
	program := MustParse(testProgram)
	poll := MustParse(testPoll)

	addr, bump, err := FindProgramAddress([][]byte{[]byte("candidate"), poll[:], {0}}, program)
	require.NoError(t, err)
	require.Equal(t, uint8(254), bump)
	require.Equal(t, "6cRVbxu8hmWtegtpS4mygZn9Z6Ry6TbK4aNqKVrdpGeK", addr.String())

	// The highest bump lands on the curve for this index.
	_, err = CreateProgramAddress([][]byte{[]byte("candidate"), poll[:], {0}, {255}}, program)
	require.Equal(t, ErrOnCurve, err)

	again, err := CreateProgramAddress([][]byte{[]byte("candidate"), poll[:], {0}, {bump}}, program)
	require.NoError(t, err)
	require.Equal(t, addr, again)

	addr, bump, err = FindProgramAddress([][]byte{[]byte("candidate"), poll[:], {1}}, program)
	require.NoError(t, err)
	require.Equal(t, uint8(255), bump)
	require.Equal(t, "8k8rTgJbq6E5HBYeWPZfycaHYHfcZqfJV32tEQYrG8f3", addr.String())
}

func TestFindProgramAddress_Receipt(t *testing.T) {
	program := MustParse(testProgram)
	poll := MustParse(testPoll)
	voter := MustParse(testVoter)

	addr, bump, err := FindProgramAddress([][]byte{[]byte("receipt"), poll[:], voter[:]}, program)
	require.NoError(t, err)
	require.Equal(t, uint8(255), bump)
	require.Equal(t, "2LFsqDkaNGLAjsJCAgtPNbb5kZ956KEigorFn8CwCu9G", addr.String())
	require.False(t, IsOnCurve(addr[:]))

	// Seed order matters.
	other, _, err := FindProgramAddress([][]byte{[]byte("receipt"), voter[:], poll[:]}, program)
	require.NoError(t, err)
	require.NotEqual(t, addr, other)
}

func TestCreateProgramAddress_BadSeeds(t *testing.T) {
	seeds := make([][]byte, MaxSeeds+1)

	_, err := CreateProgramAddress(seeds, Zero)
	require.EqualError(t, err, "too many seeds: 17 > 16")

	_, err = CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, Zero)
	require.EqualError(t, err, "seed 0 too long: 33 > 32")

	_, _, err = FindProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, Zero)
	require.EqualError(t, err, "failed to derive: seed 0 too long: 33 > 32")
}
