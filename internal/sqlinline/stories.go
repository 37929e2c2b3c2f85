package sqlinline

const QInsertStory = `--sql d4515d2c-1089-413c-ad65-5214703b5c98
insert into stories (id, user_id, title, content, settings, is_public, category, credits_cost, created_at, updated_at)
values (gen_random_uuid(), $1::uuid, $2::text, $3::text, $4::jsonb, $5::boolean, $6::text, $7::int, now(), now())
returning id, created_at, updated_at;
`

const QSelectStoryByID = `--sql c1341c4e-c641-49e1-824c-7abd3fe0d738
select id, user_id, title, content, settings, is_public,
       coalesce(audio_url, '') as audio_url,
       coalesce(image_url, '') as image_url,
       category, likes, plays, credits_cost, created_at, updated_at
from stories
where id = $1::uuid
limit 1;
`

// QAppendStoryContent concatenates in place so existing content is never
// replaced; the caller passes the separator together with the continuation.
const QAppendStoryContent = `--sql 0a40d98e-795a-4346-9f92-169b32a33456
update stories
set content = content || $2::text,
    updated_at = now()
where id = $1::uuid
returning content, updated_at;
`

const QUpdateStory = `--sql c9a18108-42bf-43fe-94a6-a67aaa6f2df8
update stories
set title = coalesce(nullif($3::text, ''), title),
    content = coalesce(nullif($4::text, ''), content),
    updated_at = now()
where id = $1::uuid
  and user_id = $2::uuid
returning id, user_id, title, content, settings, is_public,
          coalesce(audio_url, '') as audio_url,
          coalesce(image_url, '') as image_url,
          category, likes, plays, credits_cost, created_at, updated_at;
`

const QUpdateStoryVisibility = `--sql 5d66eac9-0d64-4762-bfa8-5ff07b3d7089
update stories
set is_public = $3::boolean,
    updated_at = now()
where id = $1::uuid
  and user_id = $2::uuid
returning id, user_id, title, content, settings, is_public,
          coalesce(audio_url, '') as audio_url,
          coalesce(image_url, '') as image_url,
          category, likes, plays, credits_cost, created_at, updated_at;
`

const QSetStoryAudioURL = `--sql b689ad09-3321-4609-9ec2-ffb0ebfad49f
update stories
set audio_url = $2::text,
    updated_at = now()
where id = $1::uuid;
`

const QDeleteStory = `--sql 6823a71a-dfcf-4b16-b170-d48ae6047c8f
delete from stories
where id = $1::uuid
  and user_id = $2::uuid
returning id;
`

const QListUserStories = `--sql 092ae42d-a039-4dd1-ac08-ceed4ab875f7
select id, user_id, title, content, settings, is_public,
       coalesce(audio_url, '') as audio_url,
       coalesce(image_url, '') as image_url,
       category, likes, plays, credits_cost, created_at, updated_at
from stories
where user_id = $1::uuid
order by created_at desc;
`

const QListPublicStories = `--sql e294e691-4f76-46b6-a0ca-d25d8ce5f308
select id, user_id, title, content, settings, is_public,
       coalesce(audio_url, '') as audio_url,
       coalesce(image_url, '') as image_url,
       category, likes, plays, credits_cost, created_at, updated_at
from stories
where is_public = true
order by created_at desc
limit $1::int;
`
