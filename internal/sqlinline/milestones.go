package sqlinline

const QInsertMilestone = `--sql 1cabc1aa-b00c-4dce-9e69-49ede5f4991a
insert into milestones (project_id, title, description, percentage, required_amount, current_amount, status, created_at, updated_at)
select p.id, $2::text, $3::text, $4::int, $5::numeric, least(p.current_amount, $5::numeric),
       case when p.current_amount >= $5::numeric then 'COMPLETED' else 'PENDING' end,
       now(), now()
from projects p
where p.id = $1::bigint
returning id, project_id, title, description, percentage, required_amount::text, current_amount::text, status, created_at, updated_at;
`

const QSelectMilestoneByID = `--sql fb7b4881-5459-445f-9416-deb27d72bdf3
select id, project_id, title, description, percentage, required_amount::text, current_amount::text, status, created_at, updated_at
from milestones
where id = $1::bigint;
`

const QListMilestonesByProject = `--sql 81c1efeb-2ab3-44e0-836c-87d7c3017ff1
select id, project_id, title, description, percentage, required_amount::text, current_amount::text, status, created_at, updated_at
from milestones
where project_id = $1::bigint
order by percentage asc, id asc;
`

const QUpdateMilestoneStatus = `--sql 068086c3-d262-414a-b94e-1afc51fd3726
update milestones
set status = $2::text,
    updated_at = now()
where id = $1::bigint
returning id, project_id, title, description, percentage, required_amount::text, current_amount::text, status, created_at, updated_at;
`

// QAdvanceMilestones moves every open (PENDING or ACTIVE) milestone of a project to the new
// project total and completes those whose required amount is reached.
const QAdvanceMilestones = `--sql 74b53e52-e550-4ce4-890c-c8f278b2c3c3
update milestones
set current_amount = least(required_amount, $2::numeric),
    status = case when required_amount <= $2::numeric then 'COMPLETED' else status end,
    updated_at = now()
where project_id = $1::bigint
  and status in ('PENDING', 'ACTIVE')
returning id, project_id, title, description, percentage, required_amount::text, current_amount::text, status, created_at, updated_at;
`

const QReconcileMilestones = `--sql 474cbecc-ac80-44e4-8cc5-e17b8125cb3c
update milestones m
set current_amount = least(m.required_amount, p.current_amount),
    status = case when m.required_amount <= p.current_amount then 'COMPLETED' else m.status end,
    updated_at = now()
from projects p
where p.id = m.project_id
  and m.status in ('PENDING', 'ACTIVE')
  and m.current_amount <> least(m.required_amount, p.current_amount);
`
