package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunArgumentErrors(t *testing.T) {
	ctx := context.Background()

	err := run(ctx, nil, "mint-everything", nil)
	require.ErrorIs(t, err, errUsage)

	// Description is required.
	err = run(ctx, nil, actionCreate, []string{"Name", "SYM", "2", "100", "image.png"})
	require.ErrorIs(t, err, errUsage)

	for _, action := range []string{actionBurn, actionUpdate, actionRevoke, actionQuote} {
		err = run(ctx, nil, action, nil)
		require.ErrorIs(t, err, errUsage, action)
	}

	err = run(ctx, nil, actionBurn, []string{"not-a-mint", "1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, errUsage)

	err = run(ctx, nil, actionQuote, []string{"many"})
	require.Error(t, err)
	require.NotErrorIs(t, err, errUsage)
}

func TestParseMint(t *testing.T) {
	mint, err := parseMint("11111111111111111111111111111111")
	require.NoError(t, err)
	require.True(t, mint.IsZero())

	_, err = parseMint("0OIl")
	require.Error(t, err)
}
