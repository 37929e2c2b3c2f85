package sqlinline

// Payment events mutate entitlements exactly once. The claim insert and the
// entitlement update run in the same statement: a duplicate delivery fails
// the on-conflict insert, the CTE yields no rows, and the update is skipped.

const QApplyCreditEvent = `--sql 62d95c94-9652-4b8e-8857-aed732566195
with claimed as (
    insert into payment_events (event_id, kind, user_id, credits_granted, applied_at)
    values ($1::text, 'credits', $2::uuid, $3::int, now())
    on conflict (event_id) do nothing
    returning event_id
)
update users
set credits = credits + $3::int,
    updated_at = now()
where id = $2::uuid
  and exists (select 1 from claimed)
returning credits;
`

const QApplyPremiumEvent = `--sql 503b6719-4ca2-4436-b975-fd16a1f165f1
with claimed as (
    insert into payment_events (event_id, kind, user_id, credits_granted, applied_at)
    values ($1::text, 'premium', $2::uuid, 0, now())
    on conflict (event_id) do nothing
    returning event_id
)
update users
set is_premium = true,
    updated_at = now()
where id = $2::uuid
  and exists (select 1 from claimed)
returning credits;
`

const QInsertReconciliationTask = `--sql bce0efdc-8b3c-403e-bb9a-786f702aae4e
insert into reconciliation_queue (id, event_id, kind, user_id, credits_granted, last_error, attempts, created_at)
values (gen_random_uuid(), $1::text, $2::text, $3::text, $4::int, $5::text, 1, now())
on conflict (event_id) do update set
    attempts = reconciliation_queue.attempts + 1,
    last_error = excluded.last_error
returning id;
`

const QListPendingReconciliation = `--sql b2313837-b6d2-42ee-bad8-65c539c59127
select id, event_id, kind, user_id, credits_granted, attempts
from reconciliation_queue
where resolved_at is null
order by created_at
limit $1::int;
`

const QResolveReconciliationTask = `--sql 97bd1520-6d94-49f6-b913-d8295f7288fa
update reconciliation_queue
set resolved_at = now()
where id = $1::uuid;
`

const QBumpReconciliationTask = `--sql ffb37ec9-ef6e-4694-b4b1-1fcf0253410a
update reconciliation_queue
set attempts = attempts + 1,
    last_error = $2::text
where id = $1::uuid;
`
