package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/canopy-network/ledgerx/app/indexer"
	"github.com/canopy-network/ledgerx/pkg/indexer/types"
	"github.com/canopy-network/ledgerx/pkg/logging"
	"github.com/canopy-network/ledgerx/pkg/redis"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <chain-id>",
	Short: "Prints committed ranges published by a running indexer",
	Args:  cobra.ExactArgs(1),
	RunE:  watchE,
}

func init() {
	watchCmd.Flags().String("from", "$", `Stream id to start after; "0" replays the retained history`)
}

func watchE(cmd *cobra.Command, args []string) error {
	url := v.GetString(indexer.KeyRedisURL)
	if url == "" {
		return errors.New("watch needs a redis-url")
	}
	from, err := cmd.Flags().GetString("from")
	if err != nil {
		return err
	}

	logger, err := logging.New(v.GetString(indexer.KeyLogLevel), v.GetString(indexer.KeyLogEncoding))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	client, err := redis.NewClient(ctx, logger, redis.Config{URL: url})
	if err != nil {
		return err
	}
	defer client.Close()

	consumer, err := redis.NewStreamConsumer(client, redis.StreamConsumerConfig{
		Stream: types.GetRangeCommittedStream(args[0]),
		LastID: from,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	err = consumer.Run(ctx, func(ctx context.Context, msg redis.Message) error {
		ev, err := msg.RangeCommitted()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s %s [%d, %d] %d versions\n",
			ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"), ev.Processor, ev.StartVersion, ev.EndVersion, ev.Count)
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
