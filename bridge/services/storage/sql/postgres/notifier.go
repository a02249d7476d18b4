/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

const reconnectDelay = 2 * time.Second

// ChannelName returns the notification channel of the tables with the given prefix
func ChannelName(prefix string) string {
	if len(prefix) == 0 {
		return "bridge_changes"
	}
	return prefix + "_bridge_changes"
}

// TriggerSchemas returns the statements installing a trigger on every table that
// publishes {table, key, op} on channel for each modified row
func TriggerSchemas(channel string, tables driver.TableNames) []string {
	function := fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION notify_%s() RETURNS TRIGGER AS $$
		DECLARE
			rec RECORD;
		BEGIN
			IF TG_OP = 'DELETE' THEN
				rec := OLD;
			ELSE
				rec := NEW;
			END IF;
			PERFORM pg_notify('%s', json_build_object('table', TG_TABLE_NAME, 'key', to_jsonb(rec) ->> TG_ARGV[0], 'op', TG_OP)::text);
			RETURN rec;
		END;
		$$ LANGUAGE plpgsql;`, channel, channel)

	schemas := []string{function}
	for _, t := range []struct{ table, key string }{
		{tables.Storage, "storage_key"},
		{tables.Transactions, "tx_hash"},
		{tables.Withdrawals, "id"},
		{tables.Deposits, "id"},
	} {
		schemas = append(schemas,
			fmt.Sprintf(`DROP TRIGGER IF EXISTS trigger_%s ON %s;`, t.table, t.table),
			fmt.Sprintf(`CREATE TRIGGER trigger_%s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION notify_%s('%s');`, t.table, t.table, channel, t.key),
		)
	}
	return schemas
}

type payload struct {
	Table string `json:"table"`
	Key   string `json:"key"`
	Op    string `json:"op"`
}

// ParsePayload decodes a notification sent by the triggers
func ParsePayload(s string) (driver.Change, error) {
	var p payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return driver.Change{}, errors.Wrapf(err, "invalid notification payload [%s]", s)
	}
	return driver.Change{Table: p.Table, Key: p.Key, Op: driver.ParseOperation(p.Op)}, nil
}

// Listener holds a dedicated connection listening on the channel and forwards the changes to a Notifier
type Listener struct {
	dataSource string
	channel    string
	notifier   driver.Notifier
}

func NewListener(dataSource, channel string, notifier driver.Notifier) *Listener {
	return &Listener{dataSource: dataSource, channel: channel, notifier: notifier}
}

// Listen blocks until ctx is done, reconnecting when the connection drops
func (l *Listener) Listen(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warnf("listener on [%s] stopped, reconnecting: %v", l.channel, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dataSource)
	if err != nil {
		return errors.Wrapf(err, "failed connecting listener")
	}
	defer func() {
		if err := conn.Close(context.Background()); err != nil {
			logger.Errorf("failed closing listener connection: %s", err)
		}
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return errors.Wrapf(err, "failed listening on [%s]", l.channel)
	}
	logger.Infof("listening for changes on [%s]", l.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed waiting for notification")
		}
		change, err := ParsePayload(n.Payload)
		if err != nil {
			logger.Errorf("dropping notification: %s", err)
			continue
		}
		l.notifier.Notify(change)
	}
}
