package sqlinline

const QSelectUserByID = `--sql b26e8c0e-3b46-4fa4-a0f5-5f8b0b5c9324
select
    id,
    email,
    name,
    coalesce(locale, 'en') as locale,
    role,
    subscription,
    is_premium,
    credits,
    coalesce(array_length(story_ids, 1), 0) as story_count,
    created_at,
    updated_at
from users
where id = $1::uuid
limit 1;
`

// QDebitCredits is the only way credits go down. The balance guard lives in
// the predicate so concurrent debits against the same row can never push the
// balance negative: the statement updates zero rows when funds are short.
const QDebitCredits = `--sql d857f436-085b-47b9-8ff4-cdd304d44274
update users
set credits = credits - $2::int,
    updated_at = now()
where id = $1::uuid
  and credits >= $2::int
returning credits;
`

const QCreditCredits = `--sql 502f7f90-3878-444c-be68-92414264612c
update users
set credits = credits + $2::int,
    updated_at = now()
where id = $1::uuid
returning credits;
`

const QSelectUserEntitlements = `--sql 4dea8883-0174-42f0-9619-dd83d9b780a3
select credits, is_premium
from users
where id = $1::uuid
limit 1;
`

const QAppendStoryToUser = `--sql f8425b84-af48-4ce5-895b-9f0296a2a6b3
update users
set story_ids = array_append(story_ids, $2::uuid),
    updated_at = now()
where id = $1::uuid
returning coalesce(array_length(story_ids, 1), 0);
`

const QRemoveStoryFromUser = `--sql ad6dba78-b047-4182-8d57-750922d0895a
update users
set story_ids = array_remove(story_ids, $2::uuid),
    updated_at = now()
where id = $1::uuid;
`
